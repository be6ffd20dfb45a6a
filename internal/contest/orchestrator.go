package contest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"contest-miniapp-backend/internal/models"
)

const walletLoadTimeout = 3 * time.Second

// Outcome reports what a call to Advance did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSettled
	OutcomeVoided
	OutcomeRolledOver
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSettled:
		return "settled"
	case OutcomeVoided:
		return "voided"
	case OutcomeRolledOver:
		return "rolled_over"
	default:
		return "none"
	}
}

type Config struct {
	Timing       Clock
	Prize        PrizeEngine
	Selector     WinnerSelector
	Capacity     int
	Tiers        map[models.TierID]models.Tier
	DefaultTier  models.TierID
	TickInterval time.Duration
	RecentLimit  int
}

func DefaultConfig() Config {
	return Config{
		Timing:       DefaultClock(),
		Prize:        NewPrizeEngine(),
		Selector:     SeededSelector{},
		Capacity:     MaxCapacity,
		Tiers:        models.DefaultTiers(),
		DefaultTier:  models.TierRookie,
		TickInterval: time.Second,
		RecentLimit:  5,
	}
}

// round is the live contest aggregate. Only the orchestrator touches it,
// and only while holding its lock.
type round struct {
	id         int64
	phase      models.Phase
	startedAt  time.Time
	tier       models.Tier
	registry   *Registry
	paid       map[string]decimal.Decimal
	settlement *models.Settlement
	crossed    map[int]bool
}

// Orchestrator owns the single live contest. Join, Advance, SelectTier and
// Remove are serialized; Snapshot reads an atomically published view.
type Orchestrator struct {
	mu       sync.Mutex
	cfg      Config
	clock    clockwork.Clock
	ledger   *Ledger
	bus      *EventBus
	round    *round
	recent   []models.Settlement
	view     atomic.Pointer[models.ContestView]
	selected atomic.Int64 // number of draws, for diagnostics
}

func NewOrchestrator(cfg Config, ledger *Ledger, bus *EventBus, clock clockwork.Clock) (*Orchestrator, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Selector == nil {
		cfg.Selector = SeededSelector{}
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = MaxCapacity
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = models.DefaultTiers()
	}
	tier, ok := cfg.Tiers[cfg.DefaultTier]
	if !ok {
		return nil, fmt.Errorf("default tier %q: %w", cfg.DefaultTier, ErrUnknownTier)
	}

	o := &Orchestrator{
		cfg:    cfg,
		clock:  clock,
		ledger: ledger,
		bus:    bus,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.round = o.newRound(1, clock.Now(), tier)
	o.publishView(clock.Now())
	return o, nil
}

func (o *Orchestrator) newRound(id int64, startedAt time.Time, tier models.Tier) *round {
	return &round{
		id:        id,
		phase:     models.PhaseWaiting,
		startedAt: startedAt,
		tier:      tier,
		registry:  NewRegistry(o.cfg.Capacity),
		paid:      make(map[string]decimal.Decimal),
		crossed:   make(map[int]bool),
	}
}

// Advance moves the contest forward to now. It is idempotent: once a round
// is settled, further calls only start the next round.
func (o *Orchestrator) Advance(now time.Time) Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()

	var events []Event
	outcome := o.advance(now, &events)
	o.publishView(now)
	o.emit(events)
	return outcome
}

func (o *Orchestrator) advance(now time.Time, events *[]Event) Outcome {
	r := o.round

	if r.phase == models.PhaseSettled {
		o.rollover(now, events)
		return OutcomeRolledOver
	}

	count := r.registry.Len()
	if o.cfg.Timing.InWindow(r.startedAt, now) {
		if count < o.cfg.Timing.MinParticipants {
			o.void(now, events)
			return OutcomeVoided
		}
		o.setPhase(models.PhaseFinalizing, now, events)
		o.settle(now, events)
		return OutcomeSettled
	}

	tick := o.cfg.Timing.Tick(r.startedAt, now, count)
	o.setPhase(tick.Phase, now, events)
	return OutcomeNone
}

func (o *Orchestrator) settle(now time.Time, events *[]Event) {
	r := o.round
	participants := r.registry.Participants()
	prize := o.cfg.Prize.Compute(len(participants), r.tier.Amount)

	winners := o.cfg.Selector.Select(participants, prize.WinnerCount, r.id)
	o.selected.Add(1)

	settlement := &models.Settlement{
		ContestID:    r.id,
		Tier:         r.tier.ID,
		EntryFee:     r.tier.Amount,
		Participants: len(participants),
		Winners:      winners,
		PrizePool:    prize.Pool,
		Dust:         prize.Pool,
		Seed:         r.id,
		SettledAt:    now,
	}
	if payout, ok := o.cfg.Prize.Split(Prize{Pool: prize.Pool, WinnerCount: len(winners)}); ok {
		settlement.PayoutPerWinner = payout.PerWinner
		settlement.Dust = payout.Dust
	}

	o.ledger.settle(participants, settlement)

	r.settlement = settlement
	o.setPhase(models.PhaseSettled, now, events)

	o.recent = append([]models.Settlement{*settlement}, o.recent...)
	if len(o.recent) > o.cfg.RecentLimit {
		o.recent = o.recent[:o.cfg.RecentLimit]
	}

	ev := newEvent(EventSettled, r.id, now)
	ev.Phase = models.PhaseSettled
	ev.Settlement = settlement
	ev.Participants = participants
	for _, w := range winners {
		ev.Wallets = append(ev.Wallets, WalletChange{
			UserID:  w.ID,
			Kind:    models.TransactionTypeWin,
			Amount:  settlement.PayoutPerWinner,
			Balance: o.ledger.Balance(w.ID),
		})
	}
	*events = append(*events, ev)

	log.Info().
		Int64("contest_id", r.id).
		Int("participants", len(participants)).
		Int("winners", len(winners)).
		Str("prize_pool", prize.Pool.String()).
		Str("payout", settlement.PayoutPerWinner.String()).
		Str("dust", settlement.Dust.String()).
		Msg("contest settled")
}

// void discards a round that closed without quorum, refunds whatever was
// paid and starts the next round straight away.
func (o *Orchestrator) void(now time.Time, events *[]Event) {
	r := o.round

	ev := newEvent(EventRoundVoided, r.id, now)
	ev.Phase = r.phase
	ev.Participants = r.registry.Participants()
	ev.Count = len(ev.Participants)
	for _, p := range ev.Participants {
		fee, ok := r.paid[p.ID]
		if !ok {
			continue
		}
		ev.Wallets = append(ev.Wallets, WalletChange{
			UserID:  p.ID,
			Kind:    models.TransactionTypeRefund,
			Amount:  fee,
			Balance: o.ledger.refund(p.ID, fee),
		})
	}
	*events = append(*events, ev)

	log.Info().
		Int64("contest_id", r.id).
		Int("participants", ev.Count).
		Err(ErrRoundVoided).
		Msg("not enough participants, round voided")

	o.rollover(now, events)
}

func (o *Orchestrator) rollover(now time.Time, events *[]Event) {
	prev := o.round
	o.round = o.newRound(prev.id+1, now, prev.tier)

	ev := newEvent(EventContestStarted, o.round.id, now)
	ev.Phase = models.PhaseWaiting
	ev.Tier = o.round.tier.ID
	ev.EntryFee = o.round.tier.Amount
	*events = append(*events, ev)

	log.Info().
		Int64("contest_id", o.round.id).
		Str("tier", string(o.round.tier.ID)).
		Msg("new contest started")
}

func (o *Orchestrator) setPhase(phase models.Phase, now time.Time, events *[]Event) {
	r := o.round
	if r.phase == phase {
		return
	}

	ev := newEvent(EventPhaseChanged, r.id, now)
	ev.Previous = r.phase
	ev.Phase = phase
	ev.Count = r.registry.Len()
	*events = append(*events, ev)

	log.Debug().
		Int64("contest_id", r.id).
		Str("from", string(r.phase)).
		Str("to", string(phase)).
		Msg("phase changed")

	r.phase = phase
}

// Join debits the entry fee and admits the participant as one step: both
// happen or neither does.
func (o *Orchestrator) Join(p models.Participant) (decimal.Decimal, error) {
	if err := o.loadWallet(p.ID); err != nil {
		log.Error().Err(err).Str("participant_id", p.ID).Msg("join rejected")
		return decimal.Zero, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	r := o.round

	phase := o.admissionPhase(now)
	if err := r.registry.Check(phase, p.ID); err != nil {
		log.Debug().Err(err).Int64("contest_id", r.id).Str("participant_id", p.ID).Msg("join rejected")
		return o.ledger.Balance(p.ID), err
	}

	fee := r.tier.Amount
	balance, err := o.ledger.debit(p.ID, fee)
	if err != nil {
		log.Debug().Err(err).Int64("contest_id", r.id).Str("participant_id", p.ID).Msg("join rejected")
		return balance, err
	}
	if err := r.registry.Admit(phase, p); err != nil {
		// unreachable after Check under the lock; keep the ledger whole anyway
		return o.ledger.refund(p.ID, fee), err
	}
	r.paid[p.ID] = fee

	var events []Event
	joined := newEvent(EventParticipantJoined, r.id, now)
	joined.Participant = &p
	joined.Count = r.registry.Len()
	joined.Wallets = []WalletChange{{
		UserID:  p.ID,
		Kind:    models.TransactionTypeEntry,
		Amount:  fee,
		Balance: balance,
	}}
	events = append(events, joined)
	o.checkThresholds(now, &events)

	if !o.cfg.Timing.InWindow(r.startedAt, now) {
		o.setPhase(o.cfg.Timing.Tick(r.startedAt, now, r.registry.Len()).Phase, now, &events)
	}

	log.Info().
		Int64("contest_id", r.id).
		Str("participant_id", p.ID).
		Int("participants", r.registry.Len()).
		Str("balance", balance.String()).
		Msg("participant joined")

	o.publishView(now)
	o.emit(events)
	return balance, nil
}

// admissionPhase is the phase used to decide whether a join is allowed
// right now, which may be ahead of the last Advance.
func (o *Orchestrator) admissionPhase(now time.Time) models.Phase {
	r := o.round
	if r.phase == models.PhaseSettled {
		return models.PhaseSettled
	}
	count := r.registry.Len()
	if count >= o.cfg.Timing.MinParticipants && o.cfg.Timing.InWindow(r.startedAt, now) {
		return models.PhaseFinalizing
	}
	return o.cfg.Timing.Tick(r.startedAt, now, count).Phase
}

func (o *Orchestrator) checkThresholds(now time.Time, events *[]Event) {
	r := o.round
	count := r.registry.Len()
	for _, threshold := range o.thresholds() {
		if count != threshold || r.crossed[threshold] {
			continue
		}
		r.crossed[threshold] = true

		ev := newEvent(EventCapacityThreshold, r.id, now)
		ev.Count = count
		ev.Threshold = threshold
		*events = append(*events, ev)
	}
}

func (o *Orchestrator) thresholds() []int {
	return []int{o.cfg.Timing.MinParticipants, o.cfg.Capacity * 8 / 10, o.cfg.Capacity}
}

// Remove takes a participant out of the live round and refunds the entry
// fee. Removing someone who is not in the round is a no-op.
func (o *Orchestrator) Remove(participantID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.round
	if r.phase == models.PhaseSettled || !r.registry.Remove(participantID) {
		return false
	}

	now := o.clock.Now()
	var events []Event
	if fee, ok := r.paid[participantID]; ok {
		delete(r.paid, participantID)
		ev := newEvent(EventWalletUpdated, r.id, now)
		ev.Wallets = []WalletChange{{
			UserID:  participantID,
			Kind:    models.TransactionTypeRefund,
			Amount:  fee,
			Balance: o.ledger.refund(participantID, fee),
		}}
		events = append(events, ev)
	}
	if !o.cfg.Timing.InWindow(r.startedAt, now) {
		o.setPhase(o.cfg.Timing.Tick(r.startedAt, now, r.registry.Len()).Phase, now, &events)
	}

	log.Info().Int64("contest_id", r.id).Str("participant_id", participantID).Msg("participant removed")

	o.publishView(now)
	o.emit(events)
	return true
}

// SelectTier changes the entry tier. Only allowed while the round is
// waiting and nobody has joined.
func (o *Orchestrator) SelectTier(id models.TierID) (models.Tier, error) {
	tier, ok := o.cfg.Tiers[id]
	if !ok {
		return models.Tier{}, fmt.Errorf("select tier %q: %w", id, ErrUnknownTier)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.round
	if r.phase != models.PhaseWaiting || r.registry.Len() != 0 {
		return r.tier, ErrTierLocked
	}
	if r.tier.ID == tier.ID {
		return tier, nil
	}
	r.tier = tier

	now := o.clock.Now()
	ev := newEvent(EventTierChanged, r.id, now)
	ev.Tier = tier.ID
	ev.EntryFee = tier.Amount

	log.Info().Int64("contest_id", r.id).Str("tier", string(tier.ID)).Msg("tier selected")

	o.publishView(now)
	o.emit([]Event{ev})
	return tier, nil
}

// TopUp credits a wallet. The credit and its event happen under the
// contest lock so the event carries the current contest id and is ordered
// with the lifecycle events.
func (o *Orchestrator) TopUp(userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := o.loadWallet(userID); err != nil {
		return decimal.Zero, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	balance, err := o.ledger.TopUp(userID, amount)
	if err != nil {
		return balance, err
	}

	ev := newEvent(EventWalletUpdated, o.round.id, o.clock.Now())
	ev.Wallets = []WalletChange{{
		UserID:  userID,
		Kind:    models.TransactionTypeDeposit,
		Amount:  amount,
		Balance: balance,
	}}
	o.emit([]Event{ev})
	return balance, nil
}

// loadWallet pulls a persisted wallet into the ledger before the contest
// lock is taken, keeping store I/O out of the critical section.
func (o *Orchestrator) loadWallet(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), walletLoadTimeout)
	defer cancel()
	return o.ledger.Load(ctx, userID)
}

// Snapshot returns the last published view with the countdown brought up
// to date. It never takes the contest lock.
func (o *Orchestrator) Snapshot() models.ContestView {
	view := *o.view.Load()
	if view.Phase == models.PhaseSettled {
		return view
	}
	now := o.clock.Now()
	view.SecondsRemaining = o.cfg.Timing.Tick(view.StartedAt, now, len(view.Participants)).SecondsRemaining
	view.CountdownSeconds = o.cfg.Timing.Countdown(view.StartedAt, now)
	return view
}

// Recent returns up to limit of the latest settlements, newest first.
func (o *Orchestrator) Recent(limit int) []models.Settlement {
	o.mu.Lock()
	defer o.mu.Unlock()

	if limit <= 0 || limit > len(o.recent) {
		limit = len(o.recent)
	}
	out := make([]models.Settlement, limit)
	copy(out, o.recent[:limit])
	return out
}

func (o *Orchestrator) Tiers() map[models.TierID]models.Tier {
	out := make(map[models.TierID]models.Tier, len(o.cfg.Tiers))
	for k, v := range o.cfg.Tiers {
		out[k] = v
	}
	return out
}

// Draws is the number of winner selections run so far.
func (o *Orchestrator) Draws() int64 {
	return o.selected.Load()
}

// Export returns the live round in the handoff snapshot format.
func (o *Orchestrator) Export() models.ContestSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.round
	return models.ContestSnapshot{
		ID:           r.id,
		StartTime:    r.startedAt.UnixMilli(),
		Participants: r.registry.Participants(),
		EntryFee:     r.tier.Amount,
		Tier:         r.tier.ID,
	}
}

// Run advances the contest every TickInterval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := o.clock.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", o.cfg.TickInterval).Msg("contest scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("contest scheduler stopped")
			return nil
		case <-ticker.Chan():
			if outcome := o.Advance(o.clock.Now()); outcome != OutcomeNone {
				log.Debug().Str("outcome", outcome.String()).Msg("advance")
			}
		}
	}
}

func (o *Orchestrator) publishView(now time.Time) {
	r := o.round
	count := r.registry.Len()

	view := &models.ContestView{
		ID:              r.id,
		Phase:           r.phase,
		Tier:            r.tier.ID,
		EntryFee:        r.tier.Amount,
		StartedAt:       r.startedAt,
		Participants:    r.registry.Participants(),
		MaxParticipants: r.registry.Capacity(),
		PrizePool:       decimal.Zero,
	}

	switch r.phase {
	case models.PhaseSettled:
		view.PrizePool = r.settlement.PrizePool
		view.WinnerCount = len(r.settlement.Winners)
		view.Settlement = r.settlement
		o.view.Store(view)
		return
	case models.PhaseActive, models.PhaseFinalizing:
		prize := o.cfg.Prize.Compute(count, r.tier.Amount)
		view.PrizePool = prize.Pool
		view.WinnerCount = prize.WinnerCount
	}
	view.SecondsRemaining = o.cfg.Timing.Tick(r.startedAt, now, count).SecondsRemaining
	view.CountdownSeconds = o.cfg.Timing.Countdown(r.startedAt, now)

	o.view.Store(view)
}

func (o *Orchestrator) emit(events []Event) {
	if o.bus == nil || len(events) == 0 {
		return
	}
	o.bus.Publish(events...)
}
