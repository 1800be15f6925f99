// Package bot implements the per-pull-request reconciliation engine: given a
// pull request snapshot and its collaborators (forge, tracker, census, VCS,
// jcheck), it computes the desired labels, body, status check and reply
// comments, and applies the minimal set of forge mutations.
package bot

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openjdk/jmerge/internal/types"
)

// Reserved label vocabulary.
const (
	LabelRFR           = "rfr"
	LabelReady         = "ready"
	LabelMergeConflict = "merge-conflict"
	LabelClean         = "clean"
	LabelBackport      = "backport"
	LabelJEP           = "jep"
	LabelSponsor       = "sponsor"
	LabelIntegrated    = "integrated"
	LabelBlock         = "block"
)

// BodyMarker separates user prose from the bot-maintained body sections.
const BodyMarker = "<!-- Anything below this marker will be automatically updated -->"

// Comment marker kinds. Each bot-authored comment carries exactly one marker
// so later runs can find and update it in place.
const (
	MarkerKindCommandReply  = "Jmerge command reply message"
	MarkerKindBackport      = "backport"
	MarkerKindBackportError = "backport error"
	MarkerKindForcePush     = "force-push marker"
	MarkerKindWebrev        = "webrev"
	MarkerKindApproval      = "approval"
	MarkerKindMergeConflict = "merge-conflict instructions"
	MarkerKindConfigError   = "jcheck configuration error"
	MarkerKindChecksPass    = "automated checks pass"
	MarkerKindExpiration    = "expiration warning"
)

// Marker is the hidden identity line of a bot-authored comment.
type Marker struct {
	Kind string
	Key  string
}

// String renders the marker as the HTML comment embedded in the body.
func (m Marker) String() string {
	if m.Key == "" {
		return fmt.Sprintf("<!-- %s -->", m.Kind)
	}
	return fmt.Sprintf("<!-- %s (%s) -->", m.Kind, m.Key)
}

var markerPattern = regexp.MustCompile(`<!-- ([^()]+?)(?: \(([^)]*)\))? -->`)

// ParseMarker extracts the first marker from a comment body, if any.
func ParseMarker(body string) (Marker, bool) {
	m := markerPattern.FindStringSubmatch(body)
	if m == nil {
		return Marker{}, false
	}
	return Marker{Kind: strings.TrimSpace(m[1]), Key: m[2]}, true
}

// markerIndex maps marker identity to the comment carrying it. Rebuilt from
// the snapshot on each reconciliation.
type markerIndex map[Marker]types.Comment

// buildMarkerIndex scans the bot's own comments for markers.
func buildMarkerIndex(comments []types.Comment, botUser string) markerIndex {
	idx := markerIndex{}
	for _, c := range comments {
		if botUser != "" && c.Author != botUser {
			continue
		}
		if m, ok := ParseMarker(c.Body); ok {
			if _, exists := idx[m]; !exists {
				idx[m] = c
			}
		}
	}
	return idx
}

// Has reports whether a marker is already present.
func (idx markerIndex) Has(m Marker) bool {
	_, ok := idx[m]
	return ok
}
