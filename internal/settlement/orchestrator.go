package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/obs"
	"kasirinaja/checkout/internal/payment"
	"kasirinaja/checkout/internal/xid"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingEntry
	StateEscalated
	StateInterrupted
	StateEditing
	StateAwaitingReceipt
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingEntry:
		return "awaiting_entry"
	case StateEscalated:
		return "escalated"
	case StateInterrupted:
		return "interrupted"
	case StateEditing:
		return "editing"
	case StateAwaitingReceipt:
		return "awaiting_receipt"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

type Action string

const (
	ActionRetry         Action = "retry"
	ActionResume        Action = "resume"
	ActionReturnToSheet Action = "return_to_sheet"
	ActionAcceptAsCash  Action = "accept_as_cash"
	ActionVoidAll       Action = "void_all"
	ActionCancel        Action = "cancel"
	ActionReceipt       Action = "receipt"
)

// Decision is an operator answer to an escalation, an interruption or the receipt prompt.
type Decision struct {
	Action Action `json:"action"`
	// Entries replace the open balance when resuming from the sheet.
	Entries []domain.SplitEntry `json:"entries,omitempty"`
	// Email receives the receipt; empty skips it.
	Email string `json:"email,omitempty"`
}

type eventKind int

const (
	evStart eventKind = iota
	evCharged
	evChargeFailed
	evCancelled
	evRetry
	evResume
	evReturnToSheet
	evAcceptAsCash
	evVoided
	evReceipt
	evFinalized
	evFinalizeFailed
)

var eventNames = map[eventKind]string{
	evStart:          "start",
	evCharged:        "charged",
	evChargeFailed:   "charge_failed",
	evCancelled:      "cancelled",
	evRetry:          "retry",
	evResume:         "resume",
	evReturnToSheet:  "return_to_sheet",
	evAcceptAsCash:   "accept_as_cash",
	evVoided:         "voided",
	evReceipt:        "receipt",
	evFinalized:      "finalized",
	evFinalizeFailed: "finalize_failed",
}

type event struct {
	kind       eventKind
	total      decimal.Decimal
	minEntries int
	entries    []domain.SplitEntry
	result     payment.ChargeResult
	err        error
	email      string
	tx         domain.Transaction
}

// FinalizeFunc turns the captured entries into the persisted sale.
type FinalizeFunc func(ctx context.Context, entries []domain.SplitEntry, email string) (domain.Transaction, error)

type Config struct {
	Provider    payment.Provider
	Finalize    FinalizeFunc
	Logger      zerolog.Logger
	MaxAttempts int
	Description string
}

// Orchestrator settles one sale across its payment entries, one entry at a time.
// It is not safe for concurrent use; callers serialize access per terminal.
type Orchestrator struct {
	provider    payment.Provider
	finalize    FinalizeFunc
	logger      zerolog.Logger
	maxAttempts int
	description string

	id         string
	attempts   int
	state      State
	total      decimal.Decimal
	minEntries int
	pending    []domain.SplitEntry
	captured   []domain.SplitEntry
	sheet      []domain.SplitEntry
	failures   int
	lastErr    error
	email      string
	refundErrs []string
	tx         *domain.Transaction
}

func New(cfg Config) *Orchestrator {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	description := cfg.Description
	if description == "" {
		description = "POS sale"
	}
	return &Orchestrator{
		provider:    cfg.Provider,
		finalize:    cfg.Finalize,
		logger:      cfg.Logger.With().Str("component", "settlement").Logger(),
		maxAttempts: maxAttempts,
		description: description,
	}
}

func (o *Orchestrator) State() State {
	return o.state
}

// Captured returns every entry charged so far, across resumed attempts, ordered by position.
func (o *Orchestrator) Captured() []domain.SplitEntry {
	return byPosition(o.captured)
}

func (o *Orchestrator) Pending() []domain.SplitEntry {
	return append([]domain.SplitEntry(nil), o.pending...)
}

// Start queues the entries of a new settlement. minEntries is 2 for a split and 1 for a single payment.
func (o *Orchestrator) Start(total decimal.Decimal, entries []domain.SplitEntry, minEntries int) error {
	if o.state != StateIdle && o.state != StateDone {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, o.state)
	}
	if err := Validate(total, nil, entries, minEntries); err != nil {
		return err
	}
	o.id = xid.New("stl")
	return o.advance(event{kind: evStart, total: total, minEntries: minEntries, entries: entries})
}

// Run drives queued entries until one needs an operator decision, the receipt prompt is reached,
// or ctx is cancelled. Entries are charged strictly one after another.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.state != StateAwaitingEntry {
		return fmt.Errorf("%w: run from %s", ErrInvalidState, o.state)
	}
	for o.state == StateAwaitingEntry {
		if err := ctx.Err(); err != nil {
			return o.advance(event{kind: evCancelled, err: err})
		}

		entry := o.pending[0]
		if !entry.RequiresProvider() {
			if err := o.advance(event{kind: evCharged}); err != nil {
				return err
			}
			continue
		}

		result, err := o.charge(ctx, entry)
		switch {
		case err != nil && ctx.Err() != nil:
			obs.ObserveCharge(string(entry.Method), "cancelled")
			return o.advance(event{kind: evCancelled, err: ctx.Err()})
		case err != nil:
			obs.ObserveCharge(string(entry.Method), "failure")
			o.logger.Warn().Err(err).
				Int("position", entry.Position).
				Str("method", string(entry.Method)).
				Int("attempt", o.failures+1).
				Msg("charge failed")
			if err := o.advance(event{kind: evChargeFailed, err: err}); err != nil {
				return err
			}
		default:
			obs.ObserveCharge(string(entry.Method), "success")
			if err := o.advance(event{kind: evCharged, result: result}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) charge(ctx context.Context, entry domain.SplitEntry) (payment.ChargeResult, error) {
	if o.provider == nil {
		return payment.ChargeResult{}, payment.ErrUnavailable
	}
	o.attempts++
	return o.provider.Charge(ctx, payment.ChargeRequest{
		Amount:         entry.ChargeAmount,
		Currency:       entry.CurrencyCode,
		Description:    o.description,
		Method:         string(entry.Method),
		IdempotencyKey: fmt.Sprintf("%s-%d-%d", o.id, entry.Position, o.attempts),
	})
}

// Decide applies an operator decision. Call Run again when the state returns to awaiting_entry.
func (o *Orchestrator) Decide(ctx context.Context, d Decision) error {
	switch d.Action {
	case ActionRetry:
		return o.advance(event{kind: evRetry})
	case ActionResume:
		if o.state != StateEditing {
			return o.advance(event{kind: evRetry})
		}
		if err := Validate(o.total, o.captured, d.Entries, o.minEntries); err != nil {
			return err
		}
		return o.advance(event{kind: evResume, entries: d.Entries})
	case ActionReturnToSheet:
		return o.advance(event{kind: evReturnToSheet})
	case ActionAcceptAsCash:
		return o.advance(event{kind: evAcceptAsCash})
	case ActionCancel:
		return o.advance(event{kind: evCancelled})
	case ActionVoidAll:
		return o.voidAll(ctx)
	case ActionReceipt:
		return o.finish(ctx, d.Email)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidState, d.Action)
	}
}

func (o *Orchestrator) voidAll(ctx context.Context) error {
	switch o.state {
	case StateEscalated, StateInterrupted, StateEditing:
	default:
		return fmt.Errorf("%w: void from %s", ErrInvalidState, o.state)
	}

	var refs []string
	for _, e := range o.captured {
		if e.ProviderReference != "" {
			refs = append(refs, e.ProviderReference)
		}
	}

	var (
		mu       sync.Mutex
		failures []error
		g        errgroup.Group
	)
	for _, ref := range refs {
		g.Go(func() error {
			var err error
			if o.provider == nil {
				err = payment.ErrUnavailable
			} else {
				err = o.provider.Refund(ctx, ref)
			}
			if err != nil {
				obs.ObserveRefund("failure")
				mu.Lock()
				failures = append(failures, fmt.Errorf("refund %s: %w", ref, err))
				mu.Unlock()
				return nil
			}
			obs.ObserveRefund("success")
			return nil
		})
	}
	_ = g.Wait()

	if err := o.advance(event{kind: evVoided}); err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}
	for _, f := range failures {
		o.refundErrs = append(o.refundErrs, f.Error())
	}
	o.logger.Error().Strs("refund_failures", o.refundErrs).Msg("void-all left unrefunded charges")
	return errors.Join(append([]error{ErrRefundFailed}, failures...)...)
}

func (o *Orchestrator) finish(ctx context.Context, email string) error {
	if err := o.advance(event{kind: evReceipt, email: email}); err != nil {
		return err
	}
	if o.finalize == nil {
		return o.advance(event{kind: evFinalized, tx: domain.Transaction{Total: o.total, Payments: o.Captured()}})
	}
	tx, err := o.finalize(ctx, o.Captured(), o.email)
	if err != nil {
		_ = o.advance(event{kind: evFinalizeFailed, err: err})
		return fmt.Errorf("finalize sale: %w", err)
	}
	return o.advance(event{kind: evFinalized, tx: tx})
}

// advance is the only place the state changes.
func (o *Orchestrator) advance(ev event) error {
	from := o.state
	ok := true

	switch o.state {
	case StateIdle, StateDone:
		switch ev.kind {
		case evStart:
			o.reset()
			o.total = ev.total
			o.minEntries = ev.minEntries
			o.pending = queueOrder(normalize(ev.entries, 1))
			o.state = StateAwaitingEntry
		default:
			ok = false
		}

	case StateAwaitingEntry:
		switch ev.kind {
		case evCharged:
			entry := o.pending[0]
			entry.ProviderReference = ev.result.Reference
			if ev.result.CardSuffix != "" {
				entry.CardSuffix = ev.result.CardSuffix
			}
			o.capture(entry)
		case evChargeFailed:
			o.failures++
			o.lastErr = ev.err
			switch {
			case o.failures >= o.maxAttempts:
				o.state = StateEscalated
				obs.ObserveSettlement("escalated")
			case len(o.captured) > 0:
				o.state = StateInterrupted
			}
		case evCancelled:
			o.cancel()
		default:
			ok = false
		}

	case StateEscalated:
		switch ev.kind {
		case evRetry:
			o.failures = 0
			o.state = StateAwaitingEntry
		case evReturnToSheet:
			o.toSheet()
		case evAcceptAsCash:
			entry := o.pending[0]
			entry.Method = domain.MethodCash
			entry.CashEquivalent = true
			entry.ProviderReference = ""
			entry.CardSuffix = ""
			entry.ChargeAmount = entry.AmountInMain
			entry.CurrencyCode = ""
			o.capture(entry)
		case evVoided:
			o.voided()
		case evCancelled:
			o.cancel()
		default:
			ok = false
		}

	case StateInterrupted:
		switch ev.kind {
		case evRetry:
			o.state = StateAwaitingEntry
		case evReturnToSheet:
			o.toSheet()
		case evVoided:
			o.voided()
		case evCancelled:
			o.cancel()
		default:
			ok = false
		}

	case StateEditing:
		switch ev.kind {
		case evResume:
			o.pending = queueOrder(normalize(ev.entries, o.nextPosition()))
			o.sheet = nil
			o.failures = 0
			o.lastErr = nil
			o.state = StateAwaitingEntry
		case evVoided:
			o.voided()
		case evCancelled:
			o.cancel()
		default:
			ok = false
		}

	case StateAwaitingReceipt:
		switch ev.kind {
		case evReceipt:
			o.email = ev.email
			o.state = StateFinalizing
		default:
			ok = false
		}

	case StateFinalizing:
		switch ev.kind {
		case evFinalized:
			tx := ev.tx
			o.tx = &tx
			o.state = StateDone
			obs.ObserveSettlement("completed")
		case evFinalizeFailed:
			o.lastErr = ev.err
			o.state = StateAwaitingReceipt
		default:
			ok = false
		}

	default:
		ok = false
	}

	if !ok {
		return fmt.Errorf("%w: %s from %s", ErrInvalidState, eventNames[ev.kind], from)
	}
	if from != o.state {
		o.logger.Debug().
			Str("from", from.String()).
			Str("to", o.state.String()).
			Str("event", eventNames[ev.kind]).
			Int("captured", len(o.captured)).
			Int("pending", len(o.pending)).
			Msg("settlement transition")
	}
	return nil
}

func (o *Orchestrator) capture(entry domain.SplitEntry) {
	o.captured = append(o.captured, entry)
	o.pending = o.pending[1:]
	o.failures = 0
	o.lastErr = nil
	if len(o.pending) == 0 {
		o.state = StateAwaitingReceipt
		return
	}
	o.state = StateAwaitingEntry
}

// cancel never discards captured money: with captures it hands the choice to the operator.
func (o *Orchestrator) cancel() {
	if len(o.captured) == 0 {
		o.reset()
		obs.ObserveSettlement("cancelled")
		return
	}
	o.state = StateInterrupted
}

func (o *Orchestrator) toSheet() {
	o.sheet = o.pending
	o.pending = nil
	o.failures = 0
	o.state = StateEditing
}

func (o *Orchestrator) voided() {
	o.reset()
	obs.ObserveSettlement("voided")
}

func (o *Orchestrator) reset() {
	o.state = StateIdle
	o.total = decimal.Zero
	o.minEntries = 0
	o.pending = nil
	o.captured = nil
	o.sheet = nil
	o.failures = 0
	o.lastErr = nil
	o.email = ""
	o.refundErrs = nil
	o.tx = nil
}

func (o *Orchestrator) nextPosition() int {
	next := 1
	for _, group := range [][]domain.SplitEntry{o.captured, o.sheet} {
		for _, e := range group {
			if e.Position >= next {
				next = e.Position + 1
			}
		}
	}
	return next
}

func normalize(entries []domain.SplitEntry, firstPosition int) []domain.SplitEntry {
	out := make([]domain.SplitEntry, len(entries))
	next := firstPosition
	for i, e := range entries {
		if e.Position <= 0 {
			e.Position = next
		}
		if e.Position >= next {
			next = e.Position + 1
		}
		if e.ChargeAmount.IsZero() {
			e.ChargeAmount = e.AmountInMain
		}
		e.ProviderReference = ""
		e.CashEquivalent = false
		out[i] = e
	}
	return out
}
