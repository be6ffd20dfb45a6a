package contest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"contest-miniapp-backend/internal/models"
)

var ErrNoSnapshot = errors.New("no contest snapshot")

// SnapshotSource supplies a contest snapshot written by another process.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context) (*models.ContestSnapshot, error)
}

// FileSnapshotSource reads a JSON snapshot from disk.
type FileSnapshotSource struct {
	Path string
}

func (f FileSnapshotSource) LoadSnapshot(ctx context.Context) (*models.ContestSnapshot, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", f.Path, err)
	}

	var snap models.ContestSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %v: %w", f.Path, err, ErrClockDesync)
	}
	return &snap, nil
}

type Recovery struct {
	Source   string
	Fallback bool
	Snapshot models.ContestSnapshot
	Err      error
}

// Validate rejects snapshots that cannot describe the live round at now.
// tolerance bounds how far in the future a start time may be.
func (c Clock) Validate(snap *models.ContestSnapshot, now time.Time, capacity int, tolerance time.Duration) error {
	switch {
	case snap.ID <= 0:
		return fmt.Errorf("snapshot id %d: %w", snap.ID, ErrClockDesync)
	case !snap.EntryFee.IsPositive():
		return fmt.Errorf("snapshot entry fee %s: %w", snap.EntryFee, ErrClockDesync)
	case len(snap.Participants) > capacity:
		return fmt.Errorf("snapshot has %d participants: %w", len(snap.Participants), ErrClockDesync)
	}

	start := snap.StartedAt()
	if start.After(now.Add(tolerance)) {
		return fmt.Errorf("snapshot starts %s in the future: %w", start.Sub(now), ErrClockDesync)
	}
	if c.Overdue(start, now) {
		return fmt.Errorf("snapshot round ended %s ago: %w", now.Sub(start.Add(c.RoundDuration)), ErrClockDesync)
	}

	seen := make(map[string]bool, len(snap.Participants))
	for _, p := range snap.Participants {
		if p.ID == "" || seen[p.ID] {
			return fmt.Errorf("snapshot participant %q: %w", p.ID, ErrClockDesync)
		}
		seen[p.ID] = true
	}
	return nil
}

// Synthesize builds a plausible round purely from wall time, for demo and
// offline continuity. The same now always yields the same round.
func (c Clock) Synthesize(now time.Time, tier models.Tier, fill bool) models.ContestSnapshot {
	secs := int64(c.RoundDuration / time.Second)
	if secs <= 0 {
		secs = 1
	}
	id := now.Unix() / secs
	start := time.Unix(id*secs, 0)

	snap := models.ContestSnapshot{
		ID:           id,
		StartTime:    start.UnixMilli(),
		Participants: []models.Participant{},
		EntryFee:     tier.Amount,
		Tier:         tier.ID,
	}
	if !fill {
		return snap
	}

	// one simulated player every 8s, at most 8, none after entries close
	elapsed := now.Sub(start)
	if limit := c.RoundDuration - c.SettlementWindow; elapsed > limit {
		elapsed = limit
	}
	count := int(elapsed/(8*time.Second)) + 1
	if count > 8 {
		count = 8
	}
	for i := 1; i <= count; i++ {
		snap.Participants = append(snap.Participants, models.Participant{
			ID:          fmt.Sprintf("player_%d", i),
			DisplayName: fmt.Sprintf("Player %d", i),
			AvatarToken: models.AvatarFor(i - 1),
		})
	}
	return snap
}

// Recover seeds the live round from the first usable snapshot source and
// falls back to wall-clock generation otherwise. It never fails.
func (o *Orchestrator) Recover(ctx context.Context, fill bool, sources ...SnapshotSource) Recovery {
	now := o.clock.Now()

	var lastErr error
	var lastID int64
	for _, src := range sources {
		name := fmt.Sprintf("%T", src)
		snap, err := src.LoadSnapshot(ctx)
		if err == nil {
			// even a rejected snapshot tells us which ids are already used
			lastID = max(lastID, snap.ID)
			err = o.cfg.Timing.Validate(snap, now, o.cfg.Capacity, o.cfg.TickInterval)
		}
		if err != nil {
			if !errors.Is(err, ErrNoSnapshot) {
				log.Warn().Err(err).Str("source", name).Msg("discarding contest snapshot")
				lastErr = err
			}
			continue
		}

		o.loadWallets(ctx, snap.Participants)
		o.restore(*snap, now)
		log.Info().
			Int64("contest_id", snap.ID).
			Int("participants", len(snap.Participants)).
			Str("source", name).
			Msg("contest restored from snapshot")
		return Recovery{Source: name, Snapshot: *snap}
	}

	o.mu.Lock()
	tier := o.round.tier
	o.mu.Unlock()

	snap := o.cfg.Timing.Synthesize(now, tier, fill)
	if snap.ID <= lastID {
		// rounds roll over as soon as they close, so the live id runs ahead
		// of wall time and must never be reissued
		snap.ID = lastID + 1
	}
	o.restore(snap, now)
	log.Info().
		Int64("contest_id", snap.ID).
		Int("participants", len(snap.Participants)).
		AnErr("cause", lastErr).
		Msg("no usable snapshot, generated contest from wall clock")
	return Recovery{Source: "wallclock", Fallback: true, Snapshot: snap, Err: lastErr}
}

// loadWallets pulls restored users' persisted wallets into the ledger so a
// settlement of the restored round credits their real balance.
func (o *Orchestrator) loadWallets(ctx context.Context, participants []models.Participant) {
	for _, p := range participants {
		if _, ok := models.TelegramIDFromParticipant(p.ID); !ok {
			continue
		}
		if err := o.ledger.Load(ctx, p.ID); err != nil {
			log.Warn().Err(err).Str("participant_id", p.ID).Msg("wallet load failed")
		}
	}
}

// restore replaces the live round. Participants carried in a snapshot paid
// their entry elsewhere, so nothing is debited or refundable here.
func (o *Orchestrator) restore(snap models.ContestSnapshot, now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.newRound(snap.ID, snap.StartedAt(), o.tierFor(snap.Tier, snap.EntryFee))
	for _, p := range snap.Participants {
		if err := r.registry.Admit(models.PhaseWaiting, p); err != nil {
			log.Warn().Err(err).Str("participant_id", p.ID).Msg("skipping snapshot participant")
		}
	}
	for _, threshold := range o.thresholds() {
		if r.registry.Len() >= threshold {
			r.crossed[threshold] = true
		}
	}
	o.round = r

	var events []Event
	started := newEvent(EventContestStarted, r.id, now)
	started.Phase = models.PhaseWaiting
	started.Tier = r.tier.ID
	started.EntryFee = r.tier.Amount
	started.Count = r.registry.Len()
	events = append(events, started)

	if !o.cfg.Timing.InWindow(r.startedAt, now) {
		o.setPhase(o.cfg.Timing.Tick(r.startedAt, now, r.registry.Len()).Phase, now, &events)
	}
	o.publishView(now)
	o.emit(events)
}

func (o *Orchestrator) tierFor(id models.TierID, fee decimal.Decimal) models.Tier {
	if t, ok := o.cfg.Tiers[id]; ok && t.Amount.Equal(fee) {
		return t
	}
	for _, t := range o.cfg.Tiers {
		if t.Amount.Equal(fee) {
			return t
		}
	}
	return models.Tier{ID: "custom", Name: "CUSTOM", Amount: fee, RewardMultiplier: 1}
}
