package vcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ScratchArea hands out local clones under a base directory, one per
// repository, serialized by a per-repository mutex. Acquisition is scoped:
// the clone is only valid inside the callback, and the lock is released on
// every exit path.
type ScratchArea struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	repos map[string]*LocalRepository
}

// NewScratchArea creates a scratch area rooted at baseDir.
func NewScratchArea(baseDir string) *ScratchArea {
	return &ScratchArea{
		baseDir: baseDir,
		locks:   map[string]*sync.Mutex{},
		repos:   map[string]*LocalRepository{},
	}
}

func (s *ScratchArea) lockFor(url string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[url]
	if !ok {
		l = &sync.Mutex{}
		s.locks[url] = l
	}
	return l
}

func (s *ScratchArea) dirFor(url string) string {
	name := strings.NewReplacer("https://", "", "http://", "", "/", "-", ":", "-").Replace(url)
	return filepath.Join(s.baseDir, name)
}

// WithRepository materializes an up-to-date clone of url and runs fn against
// it while holding the repository lock. Callers must not retain the
// repository beyond the callback, and must not perform forge I/O inside it.
func (s *ScratchArea) WithRepository(ctx context.Context, url string, fn func(Repository) error) error {
	lock := s.lockFor(url)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.materialize(ctx, url)
	if err != nil {
		return err
	}
	return fn(repo)
}

func (s *ScratchArea) materialize(ctx context.Context, url string) (*LocalRepository, error) {
	s.mu.Lock()
	repo, ok := s.repos[url]
	s.mu.Unlock()

	if ok {
		if err := repo.Fetch(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	}

	dir := s.dirFor(url)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		repo, err = Open(dir)
		if err == nil {
			if ferr := repo.Fetch(ctx); ferr != nil {
				return nil, ferr
			}
		} else {
			// A broken clone is discarded and recreated.
			_ = os.RemoveAll(dir) //nolint:errcheck
			repo = nil
		}
	}
	if repo == nil {
		var err error
		repo, err = Clone(ctx, url, dir)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.repos[url] = repo
	s.mu.Unlock()
	return repo, nil
}
