package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type fakeRetentionStore struct {
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakeRetentionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func TestNewRetentionSweeperValidation(t *testing.T) {
	store := &fakeRetentionStore{}

	if _, err := NewRetentionSweeper(store, "0 3 * * *", 0, discardLogger()); err == nil {
		t.Error("expected error for zero max age")
	}
	if _, err := NewRetentionSweeper(store, "not a schedule", time.Hour, discardLogger()); err == nil {
		t.Error("expected error for bad schedule")
	}
	if _, err := NewRetentionSweeper(store, "0 3 * * *", time.Hour, discardLogger()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestRetentionSweep(t *testing.T) {
	store := &fakeRetentionStore{deleted: 3}
	sweeper, err := NewRetentionSweeper(store, "0 3 * * *", 24*time.Hour, discardLogger())
	if err != nil {
		t.Fatalf("NewRetentionSweeper: %v", err)
	}

	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(store.cutoffs) != 1 {
		t.Fatalf("store called %d times, want 1", len(store.cutoffs))
	}

	wantCutoff := time.Now().UTC().Add(-24 * time.Hour)
	if diff := store.cutoffs[0].Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want ~%v", store.cutoffs[0], wantCutoff)
	}
}

func TestRetentionSweepPropagatesError(t *testing.T) {
	store := &fakeRetentionStore{err: fmt.Errorf("locked")}
	sweeper, _ := NewRetentionSweeper(store, "0 3 * * *", time.Hour, discardLogger())

	if err := sweeper.Sweep(context.Background()); err == nil {
		t.Error("expected error from store")
	}
}
