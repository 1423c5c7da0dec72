// Package notify alerts operators about trade outcomes and safety events
// over Telegram and Discord. Events can be filtered so operators only hear
// about what they configured.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flashpath/arbbot/internal/domain"
)

// Event names used for filtering.
const (
	EventOpportunity   = "opportunity"
	EventCommitted     = "committed"
	EventReverted      = "reverted"
	EventTimedOut      = "timed_out"
	EventRejected      = "rejected"
	EventEmergencyStop = "emergency_stop"
)

// Message is one operator notification.
type Message struct {
	Event string
	Title string
	Body  string
}

// Sender delivers a message on one channel.
type Sender interface {
	Post(ctx context.Context, msg Message) error
	Name() string
}

// Notifier fans messages out to every configured sender. A sender failure is
// logged and does not block the others; the trading loop never waits on a
// webhook.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier allows only the listed event names through; an empty list
// allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With("component", "notify"),
	}
}

// Notify delivers the message to every sender, subject to the event filter.
func (n *Notifier) Notify(ctx context.Context, msg Message) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[msg.Event] {
		return
	}
	for _, s := range n.senders {
		if err := s.Post(ctx, msg); err != nil {
			n.logger.Error("sender failed", "sender", s.Name(), "error", err)
		}
	}
}

// NotifyOutcome formats and delivers one execution outcome.
func (n *Notifier) NotifyOutcome(ctx context.Context, out domain.ExecutionOutcome) {
	var msg Message
	switch out.Status {
	case domain.OutcomeCommitted:
		profit := "unknown"
		if out.RealizedProfit != nil {
			profit = out.RealizedProfit.String()
		}
		msg = Message{
			Event: EventCommitted,
			Title: "Arbitrage committed",
			Body: fmt.Sprintf("candidate: %s\nprofit: %s base units\ntx: %s\nblock: %d",
				out.CandidateKey, profit, out.TxHash.Hex(), out.Block),
		}
	case domain.OutcomeReverted:
		msg = Message{
			Event: EventReverted,
			Title: "Execution reverted",
			Body: fmt.Sprintf("candidate: %s\nreason: %s\ntx: %s",
				out.CandidateKey, out.Reason, out.TxHash.Hex()),
		}
	case domain.OutcomeTimedOut:
		msg = Message{
			Event: EventTimedOut,
			Title: "Execution timed out",
			Body:  fmt.Sprintf("candidate: %s\ntx: %s", out.CandidateKey, out.TxHash.Hex()),
		}
	case domain.OutcomeNotSubmitted:
		msg = Message{
			Event: EventRejected,
			Title: "Request rejected before submission",
			Body:  fmt.Sprintf("candidate: %s\nreason: %s", out.CandidateKey, out.Reason),
		}
	default:
		return
	}
	n.Notify(ctx, msg)
}
