package vcs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScratchDirNaming(t *testing.T) {
	s := NewScratchArea("/tmp/scratch")

	dir := s.dirFor("https://github.com/openjdk/jdk.git")
	assert.Equal(t, filepath.Join("/tmp/scratch", "github.com-openjdk-jdk.git"), dir)

	other := s.dirFor("https://github.com/openjdk/skara.git")
	assert.NotEqual(t, dir, other)
}

func TestScratchLockPerRepository(t *testing.T) {
	s := NewScratchArea(t.TempDir())

	a := s.lockFor("https://example.org/a.git")
	b := s.lockFor("https://example.org/b.git")
	assert.NotSame(t, a, b)
	assert.Same(t, a, s.lockFor("https://example.org/a.git"))
}
