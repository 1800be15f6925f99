package jcheck

import (
	"fmt"
	"strings"

	"github.com/openjdk/jmerge/pkg/census"
)

// Requirement is the reviewer requirement vector: a minimum count per role,
// plus a list of users whose reviews never count.
type Requirement struct {
	Counts map[census.Role]int
	Ignore []string
}

// roleOrder lists roles from most to least privileged; a review by a higher
// role may fill a lower role's slot.
var roleOrder = []census.Role{
	census.RoleLead,
	census.RoleReviewer,
	census.RoleCommitter,
	census.RoleAuthor,
	census.RoleContributor,
}

// Max returns the element-wise maximum of two requirement vectors. The
// receiver's ignore list carries over.
func (r Requirement) Max(other Requirement) Requirement {
	out := Requirement{Counts: map[census.Role]int{}, Ignore: r.Ignore}
	for _, role := range roleOrder {
		n := r.Counts[role]
		if other.Counts[role] > n {
			n = other.Counts[role]
		}
		if n > 0 {
			out.Counts[role] = n
		}
	}
	return out
}

// Total returns the total number of required reviews.
func (r Requirement) Total() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// Ignored reports whether a user's reviews are excluded by configuration.
func (r Requirement) Ignored(username string) bool {
	for _, i := range r.Ignore {
		if i == username {
			return true
		}
	}
	return false
}

// Satisfied reports whether per-role review counts meet the requirement.
// Reviews by a higher role spill over into lower-role slots.
func (r Requirement) Satisfied(counts map[census.Role]int) bool {
	surplus := 0
	for _, role := range roleOrder {
		available := counts[role] + surplus
		if available < r.Counts[role] {
			return false
		}
		surplus = available - r.Counts[role]
	}
	return true
}

// MissingFrom returns how many reviews are still needed given per-role counts.
func (r Requirement) MissingFrom(counts map[census.Role]int) int {
	missing := 0
	surplus := 0
	for _, role := range roleOrder {
		available := counts[role] + surplus
		if available < r.Counts[role] {
			missing += r.Counts[role] - available
			available = r.Counts[role]
		}
		surplus = available - r.Counts[role]
	}
	return missing
}

// Describe renders the requirement for the PR body, e.g.
// "2 reviews required, with at least 1 Reviewer and 1 Committer".
func (r Requirement) Describe() string {
	total := r.Total()
	if total == 0 {
		return "no reviews required"
	}

	var roleParts []string
	for _, role := range roleOrder {
		if n := r.Counts[role]; n > 0 {
			plural := role.String()
			if n != 1 {
				plural += "s"
			}
			roleParts = append(roleParts, fmt.Sprintf("%d %s", n, plural))
		}
	}

	reviews := "reviews"
	if total == 1 {
		reviews = "review"
	}
	return fmt.Sprintf("%d %s required, with at least %s", total, reviews, joinAnd(roleParts))
}

func joinAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}
