// Package notify delivers assignment and swap events to members.
// Delivery is best effort: callers log failures and carry on.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventSwapRequested     EventType = "swap.requested"
	EventSwapAccepted      EventType = "swap.accepted"
	EventSwapRejected      EventType = "swap.rejected"
	EventSwapCancelled     EventType = "swap.cancelled"
	EventAssignmentCreated EventType = "assignment.created"
	EventAssignmentDeleted EventType = "assignment.deleted"
)

// Payload keys
const (
	KeySwapID         = "swap_id"
	KeyAssignmentID   = "assignment_id"
	KeyGroupID        = "group_id"
	KeyDate           = "date"
	KeyTime           = "time"
	KeyCounterpartyID = "counterparty_member_id"
	KeyOutcome        = "outcome"
	KeyReason         = "reason"
)

// Event is a single notification for one member
type Event struct {
	Type              EventType
	RecipientMemberID string
	Payload           map[string]string
	OccurredAt        time.Time
}

// Gateway accepts events for delivery
type Gateway interface {
	Notify(ctx context.Context, event Event) error
}

// LogGateway writes events to the log only
type LogGateway struct {
	logger *zap.Logger
}

func NewLogGateway(logger *zap.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Notify(ctx context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("recipient", event.RecipientMemberID),
		zap.Time("occurred_at", event.OccurredAt),
	}
	for k, v := range event.Payload {
		fields = append(fields, zap.String(k, v))
	}
	g.logger.Info("Notification", fields...)
	return nil
}

// Fanout delivers every event to each gateway in turn.
// All gateways are tried; their errors are joined.
type Fanout []Gateway

func (f Fanout) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, g := range f {
		if err := g.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event
type Discard struct{}

func (Discard) Notify(ctx context.Context, event Event) error {
	return nil
}
