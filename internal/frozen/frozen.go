// Package frozen maintains the set of administratively deactivated user ids.
// Verification paths read an immutable snapshot; an external refresher swaps
// whole snapshots so readers never observe a partial update.
package frozen

import (
	"context"
	"sync/atomic"
	"time"

	"log/slog"
)

type Set struct {
	snapshot atomic.Pointer[map[string]struct{}]
}

func NewSet() *Set {
	s := &Set{}
	empty := map[string]struct{}{}
	s.snapshot.Store(&empty)
	return s
}

// Replace swaps in a new snapshot built from ids. The previous snapshot stays
// visible to in-flight readers.
func (s *Set) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	s.snapshot.Store(&next)
}

func (s *Set) Contains(id string) bool {
	snap := s.snapshot.Load()
	_, ok := (*snap)[id]
	return ok
}

func (s *Set) Len() int {
	return len(*s.snapshot.Load())
}

// Lister is the store dependency of the refresher.
type Lister interface {
	ListFrozenUserIDs(ctx context.Context) ([]string, error)
}

type Refresher struct {
	Set      *Set
	Store    Lister
	Interval time.Duration
	Logger   *slog.Logger
}

// Run refreshes the snapshot immediately and then on every tick until ctx is
// cancelled. A failed refresh keeps the previous snapshot.
func (r *Refresher) Run(ctx context.Context) {
	r.refresh(ctx)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	ids, err := r.Store.ListFrozenUserIDs(ctx)
	if err != nil {
		r.Logger.Error("frozen set refresh failed", "error", err)
		return
	}
	r.Set.Replace(ids)
}
