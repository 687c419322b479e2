package settlement

import (
	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
)

type Status struct {
	State          string              `json:"state"`
	Total          decimal.Decimal     `json:"total"`
	Remaining      decimal.Decimal     `json:"remaining"`
	Current        *domain.SplitEntry  `json:"current,omitempty"`
	Pending        []domain.SplitEntry `json:"pending"`
	Captured       []domain.SplitEntry `json:"captured"`
	Sheet          []domain.SplitEntry `json:"sheet,omitempty"`
	Failures       int                 `json:"failures"`
	LastError      string              `json:"last_error,omitempty"`
	ReceiptPrompt  bool                `json:"receipt_prompt"`
	Options        []Action            `json:"options,omitempty"`
	RefundFailures []string            `json:"refund_failures,omitempty"`
	Transaction    *domain.Transaction `json:"transaction,omitempty"`
}

func (o *Orchestrator) Status() Status {
	s := Status{
		State:          o.state.String(),
		Total:          o.total,
		Remaining:      o.total.Sub(Sum(o.captured)),
		Pending:        o.Pending(),
		Captured:       o.Captured(),
		Sheet:          append([]domain.SplitEntry(nil), o.sheet...),
		Failures:       o.failures,
		ReceiptPrompt:  o.state == StateAwaitingReceipt,
		Options:        o.options(),
		RefundFailures: append([]string(nil), o.refundErrs...),
		Transaction:    o.tx,
	}
	if len(o.pending) > 0 {
		current := o.pending[0]
		s.Current = &current
	}
	if o.lastErr != nil {
		s.LastError = o.lastErr.Error()
	}
	return s
}

func (o *Orchestrator) options() []Action {
	switch o.state {
	case StateEscalated:
		return []Action{ActionRetry, ActionReturnToSheet, ActionAcceptAsCash, ActionVoidAll}
	case StateInterrupted:
		return []Action{ActionResume, ActionReturnToSheet, ActionVoidAll}
	case StateEditing:
		return []Action{ActionResume, ActionVoidAll, ActionCancel}
	case StateAwaitingReceipt:
		return []Action{ActionReceipt}
	default:
		return nil
	}
}
