package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/internal/types"
)

func TestMarkerRoundTrip(t *testing.T) {
	tests := []Marker{
		{Kind: MarkerKindForcePush},
		{Kind: MarkerKindCommandReply, Key: "c42"},
		{Kind: MarkerKindBackport, Key: "0123abcd"},
	}
	for _, marker := range tests {
		parsed, ok := ParseMarker(marker.String() + "\nSome comment text")
		require.True(t, ok, marker.String())
		assert.Equal(t, marker, parsed)
	}
}

func TestParseMarkerAbsent(t *testing.T) {
	_, ok := ParseMarker("Just a normal comment")
	assert.False(t, ok)
}

func TestBuildMarkerIndexFiltersAuthors(t *testing.T) {
	comments := []types.Comment{
		{ID: "c1", Author: "jmerge", Body: Marker{Kind: MarkerKindForcePush}.String() + "\nDo not force push"},
		{ID: "c2", Author: "someone", Body: Marker{Kind: MarkerKindBackportError}.String() + "\nFake"},
		{ID: "c3", Author: "jmerge", Body: "No marker here"},
	}
	idx := buildMarkerIndex(comments, "jmerge")

	assert.True(t, idx.Has(Marker{Kind: MarkerKindForcePush}))
	assert.False(t, idx.Has(Marker{Kind: MarkerKindBackportError}))
}

func TestUserProse(t *testing.T) {
	body := "My description\n\n" + BodyMarker + "\n\n### Progress\n- [x] Done\n"
	assert.Equal(t, "My description", userProse(body))
	assert.Equal(t, "No marker", userProse("No marker\n"))
}
