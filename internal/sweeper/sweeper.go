// Package sweeper removes expired messages from the shared store, together
// with file payloads no live message references any more.
package sweeper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/observability"
	"collab-lab/internal/repositories"
	"collab-lab/internal/store"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 30 * time.Second

// SweepResult summarizes one pass.
type SweepResult struct {
	Scanned      int
	Removed      int
	BlobsRemoved int
}

type Sweeper struct {
	messages repositories.MessageRepository
	blobs    store.BlobStore
	interval time.Duration
	now      func() time.Time
}

// New builds a sweeper. A non-positive interval selects DefaultInterval and
// a nil clock selects time.Now.
func New(messages repositories.MessageRepository, blobs store.BlobStore, interval time.Duration, now func() time.Time) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{messages: messages, blobs: blobs, interval: interval, now: now}
}

// Sweep deletes every expired message and then releases pending blobs,
// including those left over by earlier passes that failed. Nothing is
// written when no message has expired since the previous pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	groupIDs, err := s.messages.GroupIDs(ctx)
	if err != nil {
		return res, errors.WithMessage(err, "list message groups")
	}

	var passErr error
scan:
	for _, groupID := range groupIDs {
		msgs, err := s.messages.List(ctx, groupID)
		if err != nil {
			passErr = errors.WithMessagef(err, "list messages group=%s", groupID)
			break
		}
		res.Scanned += len(msgs)
		for _, m := range msgs {
			if !m.Expired(now) {
				continue
			}
			if m.File != nil && s.blobs != nil {
				if err := s.messages.MarkBlobRelease(ctx, m.File.BlobKey); err != nil {
					passErr = errors.WithMessagef(err, "mark blob release key=%s", m.File.BlobKey)
					break scan
				}
			}
			if err := s.messages.Delete(ctx, groupID, m.ID); err != nil {
				passErr = errors.WithMessagef(err, "delete message group=%s id=%s", groupID, m.ID)
				break scan
			}
			res.Removed++
		}
	}

	n, err := s.releasePending(ctx, now)
	res.BlobsRemoved = n
	if passErr != nil {
		if err != nil {
			jww.WARN.Printf("blob release failed after sweep error: %v", err)
		}
		return res, passErr
	}
	return res, err
}

func (s *Sweeper) releasePending(ctx context.Context, now time.Time) (int, error) {
	if s.blobs == nil {
		return 0, nil
	}
	pending, err := s.messages.PendingBlobReleases(ctx)
	if err != nil {
		return 0, errors.WithMessage(err, "list pending blob releases")
	}
	return ReleaseBlobs(ctx, s.messages, s.blobs, pending, now)
}

// Run sweeps once immediately and then every interval until ctx is done.
// Failed passes are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepAndLog(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	res, err := s.Sweep(ctx)
	observability.AddSweeperRemoved("message", res.Removed)
	observability.AddSweeperRemoved("blob", res.BlobsRemoved)
	if err != nil {
		observability.IncSweeperRun("error")
		jww.WARN.Printf("ttl sweep failed, retrying next tick: %v", err)
		return
	}
	observability.IncSweeperRun("ok")
	if res.Removed > 0 {
		jww.INFO.Printf("ttl sweep removed=%d blobs_removed=%d scanned=%d", res.Removed, res.BlobsRemoved, res.Scanned)
	}
}

// ReleaseBlobs deletes the candidate blobs that no live message in any group
// still references, and returns how many were deleted. The release marker of
// every handled candidate is cleared; a candidate that fails keeps its marker
// and is retried by the next sweep.
func ReleaseBlobs(ctx context.Context, messages repositories.MessageRepository, blobs store.BlobStore, candidates []string, now time.Time) (int, error) {
	if len(candidates) == 0 || blobs == nil {
		return 0, nil
	}
	referenced, err := liveBlobRefs(ctx, messages, now)
	if err != nil {
		return 0, errors.WithMessage(err, "collect blob references")
	}

	removed := 0
	var firstErr error
	seen := map[string]bool{}
	for _, key := range candidates {
		if seen[key] {
			continue
		}
		seen[key] = true
		if !referenced[key] {
			if err := blobs.Delete(ctx, key); err != nil {
				if firstErr == nil {
					firstErr = errors.WithMessagef(err, "delete blob %s", key)
				}
				continue
			}
			removed++
		}
		if err := messages.ClearBlobRelease(ctx, key); err != nil && firstErr == nil {
			firstErr = errors.WithMessagef(err, "clear blob release %s", key)
		}
	}
	return removed, firstErr
}

func liveBlobRefs(ctx context.Context, messages repositories.MessageRepository, now time.Time) (map[string]bool, error) {
	groupIDs, err := messages.GroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	refs := map[string]bool{}
	for _, groupID := range groupIDs {
		msgs, err := messages.List(ctx, groupID)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m.File != nil && !m.Expired(now) {
				refs[m.File.BlobKey] = true
			}
		}
	}
	return refs, nil
}
