package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kanbu/realtime/pkg/domain"
)

// Resolution is the user's choice when a save hits a version conflict.
type Resolution int

const (
	// ResolutionDismiss keeps the local edits on screen; the save stays
	// rejected until the user reloads.
	ResolutionDismiss Resolution = iota
	// ResolutionReload discards local edits and re-baselines on the
	// server's current version.
	ResolutionReload
)

// ConflictPrompt asks the user how to resolve a version conflict. It
// blocks until the user chooses; there is no silent merge.
type ConflictPrompt func(ctx context.Context, entityID uuid.UUID) Resolution

// SaveFunc sends the edit with the expected version marker and returns the
// new marker on success. It must return domain.ErrVersionConflict
// (wrapped is fine) when the server rejects the version.
type SaveFunc func(ctx context.Context, expected time.Time) (time.Time, error)

// ReloadFunc fetches the entity's current server state and returns its
// version marker.
type ReloadFunc func(ctx context.Context) (time.Time, error)

// ConflictDetector implements application-layer optimistic locking: it
// remembers the version marker seen at edit-start and sends it with the
// save. Two users may edit the same entity concurrently; the second to
// save loses and is asked to reload or dismiss.
type ConflictDetector struct {
	prompt ConflictPrompt

	mu        sync.Mutex
	baselines map[uuid.UUID]time.Time
}

func NewConflictDetector(prompt ConflictPrompt) *ConflictDetector {
	return &ConflictDetector{
		prompt:    prompt,
		baselines: make(map[uuid.UUID]time.Time),
	}
}

// Begin records the version marker of entityID as seen when editing starts.
func (cd *ConflictDetector) Begin(entityID uuid.UUID, version time.Time) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.baselines[entityID] = version
}

// Baseline returns the recorded edit-start version.
func (cd *ConflictDetector) Baseline(entityID uuid.UUID) (time.Time, bool) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	v, ok := cd.baselines[entityID]
	return v, ok
}

// Save runs one guarded save. On success the baseline advances to the new
// version. On a version conflict the prompt runs: Reload fetches the
// current server state (discarding local edits) and re-baselines; Dismiss
// leaves everything as is. Either way the conflicting save stays rejected
// and domain.ErrVersionConflict is returned.
func (cd *ConflictDetector) Save(ctx context.Context, entityID uuid.UUID, save SaveFunc, reload ReloadFunc) error {
	expected, ok := cd.Baseline(entityID)
	if !ok {
		return fmt.Errorf("client.ConflictDetector.Save: no edit in progress for %s", entityID)
	}

	next, err := save(ctx, expected)
	if err == nil {
		cd.Begin(entityID, next)
		return nil
	}
	if !errors.Is(err, domain.ErrVersionConflict) {
		return fmt.Errorf("client.ConflictDetector.Save: %w", err)
	}

	if cd.prompt(ctx, entityID) == ResolutionReload {
		current, rerr := reload(ctx)
		if rerr != nil {
			return fmt.Errorf("client.ConflictDetector.Save: reload after conflict: %w", rerr)
		}
		cd.Begin(entityID, current)
	}

	return fmt.Errorf("client.ConflictDetector.Save: %w", domain.ErrVersionConflict)
}

// End forgets the baseline when editing finishes or is cancelled.
func (cd *ConflictDetector) End(entityID uuid.UUID) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	delete(cd.baselines, entityID)
}
