package realtime

import (
	"context"

	"github.com/sourcemarket/sourcemarket-api/logger"
)

// Notifier publishes row changes after they are committed. Delivery is best
// effort: a broker failure is logged and never undoes the write.
type Notifier struct {
	broker Broker
}

// NewNotifier returns a notifier on broker. A nil broker disables publishing.
func NewNotifier(broker Broker) *Notifier {
	return &Notifier{broker: broker}
}

// Inserted publishes an INSERT carrying the new row image
func (n *Notifier) Inserted(ctx context.Context, table string, row Row) {
	n.publish(ctx, table, EventInsert, row.RowID(), nil, row)
}

// Updated publishes an UPDATE carrying both row images
func (n *Notifier) Updated(ctx context.Context, table string, oldRow, newRow Row) {
	n.publish(ctx, table, EventUpdate, newRow.RowID(), oldRow, newRow)
}

// Deleted publishes a DELETE carrying the last row image
func (n *Notifier) Deleted(ctx context.Context, table string, oldRow Row) {
	n.publish(ctx, table, EventDelete, oldRow.RowID(), oldRow, nil)
}

func (n *Notifier) publish(ctx context.Context, table string, typ EventType, rowID string, oldRow, newRow any) {
	if n == nil || n.broker == nil {
		return
	}

	event, err := NewEvent(table, typ, rowID, oldRow, newRow)
	if err != nil {
		logger.Warn("failed to encode realtime event", "table", table, "row_id", rowID, "error", err)
		return
	}
	// The request context may already be cancelled once the response is out
	if err := n.broker.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("failed to publish realtime event",
			"table", table, "type", typ, "row_id", rowID, "error", err)
	}
}
