// Package realtime carries row-level change events from the services that
// commit them to every connected admin session, and keeps each session's
// list and counters reconciled with the store.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Table names events are published under
const (
	TableOrders          = "orders"
	TableServiceRequests = "service_requests"
)

// EventType is the kind of row change
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Row is what the realtime layer needs to know about a record
type Row interface {
	RowID() string
	RowStatus() string
}

// Event is a committed change to one row. Old is empty for inserts and New
// is empty for deletes.
type Event struct {
	ID          string          `json:"id"`
	Table       string          `json:"table"`
	Type        EventType       `json:"type"`
	RowID       string          `json:"row_id"`
	Old         json.RawMessage `json:"old,omitempty"`
	New         json.RawMessage `json:"new,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

// NewEvent encodes the row images of a change. Pass nil for a missing image.
func NewEvent(table string, typ EventType, rowID string, oldRow, newRow any) (Event, error) {
	event := Event{
		ID:          uuid.NewString(),
		Table:       table,
		Type:        typ,
		RowID:       rowID,
		CommittedAt: time.Now().UTC(),
	}

	var err error
	if oldRow != nil {
		if event.Old, err = json.Marshal(oldRow); err != nil {
			return Event{}, fmt.Errorf("encode old row: %w", err)
		}
	}
	if newRow != nil {
		if event.New, err = json.Marshal(newRow); err != nil {
			return Event{}, fmt.Errorf("encode new row: %w", err)
		}
	}
	return event, nil
}

// statusOf reads the "status" field of a row image without decoding the
// whole row
func statusOf(image json.RawMessage) (string, bool) {
	if len(image) == 0 {
		return "", false
	}
	var probe struct {
		Status *string `json:"status"`
	}
	if err := json.Unmarshal(image, &probe); err != nil || probe.Status == nil {
		return "", false
	}
	return *probe.Status, true
}
