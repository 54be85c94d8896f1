// Package notify turns ticket lifecycle events into agent-facing
// notifications. Delivery is log-backed for now; the worker consumes the
// notifications topic so a real channel can be swapped in behind Sender.
package notify

import (
	"context"

	"github.com/skyfare/ticketing/internal/kafka"
	"go.uber.org/zap"
)

type Sender struct {
	log *zap.Logger
}

func NewSender(log *zap.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.TicketEvent) error {
	s.log.Info("notification",
		zap.String("type", event.Type),
		zap.String("booking_id", event.BookingID),
		zap.String("pnr", event.PNR),
		zap.String("status", event.Status),
		zap.Int64("amount_minor", event.AmountMinor),
		zap.String("currency", event.Currency),
	)
	return nil
}
