package jcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openjdk/jmerge/pkg/census"
)

func req(counts map[census.Role]int) Requirement {
	return Requirement{Counts: counts}
}

func TestRequirementMax(t *testing.T) {
	a := req(map[census.Role]int{census.RoleReviewer: 1})
	b := req(map[census.Role]int{census.RoleReviewer: 2, census.RoleCommitter: 1})

	max := a.Max(b)
	assert.Equal(t, 2, max.Counts[census.RoleReviewer])
	assert.Equal(t, 1, max.Counts[census.RoleCommitter])
	assert.Equal(t, 3, max.Total())
}

func TestRequirementSatisfiedSpillover(t *testing.T) {
	r := req(map[census.Role]int{census.RoleReviewer: 1, census.RoleCommitter: 1})

	// A lead can fill the reviewer slot, a reviewer the committer slot.
	assert.True(t, r.Satisfied(map[census.Role]int{census.RoleLead: 1, census.RoleReviewer: 1}))
	assert.True(t, r.Satisfied(map[census.Role]int{census.RoleReviewer: 2}))
	assert.False(t, r.Satisfied(map[census.Role]int{census.RoleCommitter: 2}))
	assert.False(t, r.Satisfied(map[census.Role]int{census.RoleReviewer: 1}))
}

func TestRequirementDescribe(t *testing.T) {
	assert.Equal(t, "no reviews required", req(nil).Describe())
	assert.Equal(t, "1 review required, with at least 1 Reviewer",
		req(map[census.Role]int{census.RoleReviewer: 1}).Describe())
	assert.Equal(t, "3 reviews required, with at least 1 Reviewer and 2 Committers",
		req(map[census.Role]int{census.RoleReviewer: 1, census.RoleCommitter: 2}).Describe())
}

func TestRequirementMissingFrom(t *testing.T) {
	r := req(map[census.Role]int{census.RoleReviewer: 2})
	assert.Equal(t, 2, r.MissingFrom(nil))
	assert.Equal(t, 1, r.MissingFrom(map[census.Role]int{census.RoleReviewer: 1}))
	assert.Equal(t, 0, r.MissingFrom(map[census.Role]int{census.RoleReviewer: 2}))
}
