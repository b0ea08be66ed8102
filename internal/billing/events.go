package billing

import (
	"context"
	"time"

	"membership-billing/internal/common/database"
	"membership-billing/internal/common/errors"
	"membership-billing/internal/common/logger"
)

// Event types recorded in the payment_events audit log.
const (
	EventLinkCreated = "link_created"
	EventConfirmed   = "confirmed"
	EventFailed      = "failed"
	EventRejected    = "rejected"
	EventDuplicate   = "duplicate"
)

// Event is one append-only row of the payment_events table.
type Event struct {
	OrderID  string
	TradeNo  string
	MemberID string
	Period   string
	Type     string
	Amount   string
	Detail   string
}

// EventLog appends payment lifecycle events to postgres. The table is
// append-only; rows are never updated or deleted.
type EventLog struct {
	db     *database.PostgresClient
	logger logger.Logger
}

func NewEventLog(db *database.PostgresClient, log logger.Logger) *EventLog {
	return &EventLog{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "event-log"}),
	}
}

const insertEventQuery = `
	INSERT INTO payment_events (order_id, trade_no, member_id, period, event_type, amount, detail, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Record appends one event.
func (l *EventLog) Record(ctx context.Context, event Event) error {
	_, err := l.db.Exec(ctx, insertEventQuery,
		event.OrderID, event.TradeNo, event.MemberID, event.Period,
		event.Type, event.Amount, event.Detail, time.Now().UTC())
	if err != nil {
		l.logger.Error("failed to record payment event", map[string]interface{}{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}
