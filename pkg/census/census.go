// Package census maps forge user identities to project roles. The census is
// the authoritative source for command authorization and review weighting.
package census

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Role is a contributor role within the project.
type Role int

const (
	RoleNone Role = iota
	RoleContributor
	RoleAuthor
	RoleCommitter
	RoleReviewer
	RoleLead
)

// String returns the human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleContributor:
		return "Contributor"
	case RoleAuthor:
		return "Author"
	case RoleCommitter:
		return "Committer"
	case RoleReviewer:
		return "Reviewer"
	case RoleLead:
		return "Lead"
	default:
		return "none"
	}
}

// ParseRole converts a role keyword as it appears in jcheck configuration and
// commands. Both singular and plural forms are accepted.
func ParseRole(s string) (Role, error) {
	switch s {
	case "lead", "leads":
		return RoleLead, nil
	case "reviewer", "reviewers":
		return RoleReviewer, nil
	case "committer", "committers":
		return RoleCommitter, nil
	case "author", "authors":
		return RoleAuthor, nil
	case "contributor", "contributors":
		return RoleContributor, nil
	}
	return RoleNone, fmt.Errorf("unknown role: %s", s)
}

// AtLeast reports whether the role meets the given minimum.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// Member is one census entry. Since and Until bound the membership interval;
// zero values mean unbounded.
type Member struct {
	Username string    `yaml:"username"`
	FullName string    `yaml:"full_name"`
	Email    string    `yaml:"email"`
	Role     string    `yaml:"role"`
	Since    time.Time `yaml:"since,omitempty"`
	Until    time.Time `yaml:"until,omitempty"`
}

// Store answers role queries against a census snapshot.
type Store interface {
	// RoleAt returns the member's role at the given instant. Users absent
	// from the census get RoleNone.
	RoleAt(username string, at time.Time) Role

	// Member returns the census entry for a username, if present.
	Member(username string) (Member, bool)

	// Version identifies the loaded census snapshot.
	Version() string
}

// File is the on-disk census document.
type File struct {
	Version string   `yaml:"version"`
	Group   string   `yaml:"group"`
	Members []Member `yaml:"members"`
}

type store struct {
	mu      sync.RWMutex
	version string
	members map[string]Member
	roles   map[string]Role
}

// Parse builds a Store from census YAML content.
func Parse(data []byte) (Store, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse census: %w", err)
	}

	s := &store{
		version: f.Version,
		members: make(map[string]Member, len(f.Members)),
		roles:   make(map[string]Role, len(f.Members)),
	}
	for _, m := range f.Members {
		role, err := ParseRole(m.Role)
		if err != nil {
			return nil, fmt.Errorf("census member %s: %w", m.Username, err)
		}
		s.members[m.Username] = m
		s.roles[m.Username] = role
	}
	return s, nil
}

// Load reads and parses a census file.
func Load(path string) (Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read census %s: %w", path, err)
	}
	return Parse(data)
}

func (s *store) RoleAt(username string, at time.Time) Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[username]
	if !ok {
		return RoleNone
	}
	if !m.Since.IsZero() && at.Before(m.Since) {
		return RoleNone
	}
	if !m.Until.IsZero() && at.After(m.Until) {
		return RoleNone
	}
	return s.roles[username]
}

func (s *store) Member(username string) (Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[username]
	return m, ok
}

func (s *store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
