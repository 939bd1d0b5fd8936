package frozen

import (
	"context"
	"errors"
	"io"
	"testing"

	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReplaceAndContains(t *testing.T) {
	s := NewSet()
	if s.Contains("u1") {
		t.Fatal("empty set should contain nothing")
	}

	s.Replace([]string{"u1", "u2"})
	if !s.Contains("u1") || !s.Contains("u2") {
		t.Fatal("expected replaced ids present")
	}

	s.Replace([]string{"u3"})
	if s.Contains("u1") {
		t.Fatal("old snapshot still visible after replace")
	}
	if !s.Contains("u3") {
		t.Fatal("new snapshot missing id")
	}
}

type failingLister struct{}

func (failingLister) ListFrozenUserIDs(ctx context.Context) ([]string, error) {
	return nil, errors.New("db down")
}

func TestRefreshKeepsSnapshotOnError(t *testing.T) {
	s := NewSet()
	s.Replace([]string{"u1"})

	r := &Refresher{Set: s, Store: failingLister{}, Logger: discardLogger()}
	r.refresh(context.Background())

	if !s.Contains("u1") {
		t.Fatal("failed refresh must keep the previous snapshot")
	}
}
