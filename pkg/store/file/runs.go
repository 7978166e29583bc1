package file

import (
	"context"
	"slices"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/store"
)

// runStore implements store.RunStore for file-based storage.
type runStore struct {
	fs *FileStore
}

func cloneRun(r *apitest.Run) *apitest.Run {
	c := *r
	c.Results = slices.Clone(r.Results)
	return &c
}

// newestFirst orders runs by start time, newest first.
func newestFirst(a, b *apitest.Run) int {
	return b.StartedAt.Compare(a.StartedAt)
}

// List returns runs newest first, optionally filtered by suite.
func (s *runStore) List(ctx context.Context, suiteID string, limit int) ([]*apitest.Run, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	result := []*apitest.Run{}
	for _, r := range s.fs.data.Runs {
		if suiteID == "" || r.SuiteID == suiteID {
			result = append(result, cloneRun(r))
		}
	}
	slices.SortStableFunc(result, newestFirst)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Get returns a single run by ID.
func (s *runStore) Get(ctx context.Context, id string) (*apitest.Run, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	for _, r := range s.fs.data.Runs {
		if r.ID == id {
			return cloneRun(r), nil
		}
	}
	return nil, store.ErrNotFound
}

// Save inserts or replaces a run.
func (s *runStore) Save(ctx context.Context, run *apitest.Run) error {
	if run.ID == "" {
		return store.ErrInvalidID
	}
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	c := cloneRun(run)
	op := store.OpCreate
	if idx := slices.IndexFunc(s.fs.data.Runs, func(x *apitest.Run) bool { return x.ID == run.ID }); idx >= 0 {
		s.fs.data.Runs[idx] = c
		op = store.OpUpdate
	} else {
		s.fs.data.Runs = append(s.fs.data.Runs, c)
	}
	s.fs.markDirty()
	s.fs.notify(store.CollectionRuns, op, run.ID, c)
	return nil
}

// Prune keeps the newest keep runs of a suite and deletes the rest.
func (s *runStore) Prune(ctx context.Context, suiteID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return 0, err
	}
	var suiteRuns []*apitest.Run
	for _, r := range s.fs.data.Runs {
		if r.SuiteID == suiteID {
			suiteRuns = append(suiteRuns, r)
		}
	}
	if len(suiteRuns) <= keep {
		return 0, nil
	}
	slices.SortStableFunc(suiteRuns, newestFirst)
	drop := make(map[string]bool, len(suiteRuns)-keep)
	for _, r := range suiteRuns[keep:] {
		drop[r.ID] = true
	}
	s.fs.data.Runs = slices.DeleteFunc(s.fs.data.Runs, func(r *apitest.Run) bool { return drop[r.ID] })
	s.fs.markDirty()
	for id := range drop {
		s.fs.notify(store.CollectionRuns, store.OpDelete, id, nil)
	}
	return len(drop), nil
}
