package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sourcemarket/sourcemarket-api/logger"
)

// Stats are the counters shown next to a dashboard list
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

func (s Stats) clone() Stats {
	out := Stats{Total: s.Total, ByStatus: make(map[string]int, len(s.ByStatus))}
	for k, v := range s.ByStatus {
		out.ByStatus[k] = v
	}
	return out
}

// Notice is raised for every row that newly appears on a dashboard
type Notice struct {
	Table  string    `json:"table"`
	RowID  string    `json:"row_id"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// Update is emitted after an event changed the dashboard
type Update struct {
	Event Event `json:"event"`
	Stats Stats `json:"stats"`
}

// Dashboard is the live view model of one admin session: a list of rows
// plus counters, kept in step with committed changes. It owns exactly one
// broker subscription, released by Close.
type Dashboard[T Row] struct {
	table    string
	match    func(T) bool
	seededAt time.Time

	mu      sync.RWMutex
	rows    []T
	stats   Stats
	deleted map[string]struct{}

	sub     *Subscription
	updates chan Update
	notices chan Notice
	stopped chan struct{}
	once    sync.Once
}

// Seed loads the rows and counters a dashboard starts from
type Seed[T Row] func(ctx context.Context) ([]T, Stats, error)

// Option configures a Dashboard
type Option[T Row] func(*Dashboard[T])

// WithFilter keeps only rows accepted by match in the list. Counters always
// cover the whole table.
func WithFilter[T Row](match func(T) bool) Option[T] {
	return func(d *Dashboard[T]) {
		d.match = match
	}
}

// NewDashboard subscribes to table, then seeds the dashboard and starts
// applying changes. Events committed before seeding began are already in the
// snapshot and are skipped; the rest go through the idempotent apply rules.
// The caller must Close the dashboard when the session ends.
func NewDashboard[T Row](ctx context.Context, broker Broker, table string, seed Seed[T], opts ...Option[T]) (*Dashboard[T], error) {
	sub, err := broker.Subscribe(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("subscribe dashboard: %w", err)
	}

	seededAt := time.Now().UTC()
	rows, stats, err := seed(ctx)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("seed dashboard: %w", err)
	}

	d := newDashboard(table, rows, stats, opts...)
	d.seededAt = seededAt
	d.sub = sub

	go d.run()
	return d, nil
}

func newDashboard[T Row](table string, rows []T, stats Stats, opts ...Option[T]) *Dashboard[T] {
	d := &Dashboard[T]{
		table:   table,
		rows:    append([]T(nil), rows...),
		stats:   stats.clone(),
		deleted: make(map[string]struct{}),
		updates: make(chan Update, DefaultBuffer),
		notices: make(chan Notice, DefaultBuffer),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dashboard[T]) listed(row T) bool {
	return d.match == nil || d.match(row)
}

func (d *Dashboard[T]) run() {
	defer close(d.stopped)
	defer close(d.updates)

	for event := range d.sub.Events() {
		changed, err := d.Apply(event)
		if err != nil {
			logger.Warn("dashboard could not apply event",
				"table", d.table, "event_id", event.ID, "error", err)
			continue
		}
		if !changed {
			continue
		}
		select {
		case d.updates <- Update{Event: event, Stats: d.Stats()}:
		default:
			logger.Warn("dashboard consumer is behind, dropping update", "table", d.table, "event_id", event.ID)
		}
	}
}

// Apply reconciles one event into the list and counters and reports whether
// anything changed. Duplicate inserts and deletes are ignored.
func (d *Dashboard[T]) Apply(event Event) (bool, error) {
	if event.Table != d.table {
		return false, nil
	}
	if !d.seededAt.IsZero() && event.CommittedAt.Before(d.seededAt) {
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch event.Type {
	case EventInsert:
		return d.applyInsert(event)
	case EventUpdate:
		return d.applyUpdate(event)
	case EventDelete:
		return d.applyDelete(event), nil
	default:
		return false, fmt.Errorf("unknown event type %q", event.Type)
	}
}

func (d *Dashboard[T]) applyInsert(event Event) (bool, error) {
	var row T
	if err := json.Unmarshal(event.New, &row); err != nil {
		return false, fmt.Errorf("decode inserted row: %w", err)
	}
	id := row.RowID()
	if d.indexOf(id) >= 0 {
		return false, nil
	}
	if _, gone := d.deleted[id]; gone {
		return false, nil
	}

	d.stats.Total++
	d.increment(row.RowStatus())
	if !d.listed(row) {
		return true, nil
	}

	d.rows = append([]T{row}, d.rows...)
	select {
	case d.notices <- Notice{Table: d.table, RowID: id, Status: row.RowStatus(), At: event.CommittedAt}:
	default:
	}
	return true, nil
}

// applyUpdate replaces the local row and moves the status counters. Rows
// outside the loaded page still move the counters, which cover the whole table.
// A listed row that already carries the new status has been counted.
func (d *Dashboard[T]) applyUpdate(event Event) (bool, error) {
	var row T
	if err := json.Unmarshal(event.New, &row); err != nil {
		return false, fmt.Errorf("decode updated row: %w", err)
	}

	oldStatus, haveOld := statusOf(event.Old)
	i := d.indexOf(row.RowID())
	if i >= 0 {
		local := d.rows[i].RowStatus()
		switch {
		case !haveOld:
			oldStatus, haveOld = local, true
		case local == row.RowStatus():
			oldStatus = local
		}
		if d.listed(row) {
			d.rows[i] = row
		} else {
			d.rows = append(d.rows[:i], d.rows[i+1:]...)
		}
	}

	if haveOld && oldStatus != row.RowStatus() {
		d.decrement(oldStatus)
		d.increment(row.RowStatus())
	}
	return true, nil
}

func (d *Dashboard[T]) applyDelete(event Event) bool {
	if _, gone := d.deleted[event.RowID]; gone {
		return false
	}
	d.deleted[event.RowID] = struct{}{}

	status, haveStatus := statusOf(event.Old)
	if i := d.indexOf(event.RowID); i >= 0 {
		if !haveStatus {
			status, haveStatus = d.rows[i].RowStatus(), true
		}
		d.rows = append(d.rows[:i], d.rows[i+1:]...)
	}

	if d.stats.Total > 0 {
		d.stats.Total--
	}
	if haveStatus {
		d.decrement(status)
	}
	return true
}

func (d *Dashboard[T]) indexOf(id string) int {
	for i, r := range d.rows {
		if r.RowID() == id {
			return i
		}
	}
	return -1
}

func (d *Dashboard[T]) increment(status string) {
	if d.stats.ByStatus == nil {
		d.stats.ByStatus = make(map[string]int)
	}
	d.stats.ByStatus[status]++
}

// counters never go below zero
func (d *Dashboard[T]) decrement(status string) {
	if d.stats.ByStatus[status] > 0 {
		d.stats.ByStatus[status]--
	}
}

// Rows returns a copy of the current list, newest first
func (d *Dashboard[T]) Rows() []T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]T(nil), d.rows...)
}

// Stats returns a copy of the current counters
func (d *Dashboard[T]) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats.clone()
}

// Updates delivers one value per applied change; closed after Close
func (d *Dashboard[T]) Updates() <-chan Update {
	return d.updates
}

// Notices delivers one value per newly seen row
func (d *Dashboard[T]) Notices() <-chan Notice {
	return d.notices
}

// Close releases the subscription and waits for the apply loop to stop
func (d *Dashboard[T]) Close() {
	d.once.Do(func() {
		if d.sub == nil {
			return
		}
		d.sub.Close()
		<-d.stopped
	})
}
