// Package jobs runs the background maintenance tasks of the API.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/services"
	"golang.org/x/sync/errgroup"
)

// OrphanMaxAge is how long a checkout may sit without items before its
// order is considered abandoned
const OrphanMaxAge = 10 * time.Minute

const taskTimeout = time.Minute

// Options configures the scheduler
type Options struct {
	ReconcileInterval time.Duration
	StatsInterval     time.Duration
}

// Scheduler owns the running jobs
type Scheduler struct {
	s gocron.Scheduler
}

// Start registers every job and starts the scheduler
func Start(opts Options) (*Scheduler, error) {
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = OrphanMaxAge
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Hour
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	jobs := []struct {
		name     string
		interval time.Duration
		task     func()
	}{
		{"reconcile-orphaned-orders", opts.ReconcileInterval, func() { runTask(ReconcileOrders) }},
		{"statistics-heartbeat", opts.StatsInterval, func() { runTask(LogStatistics) }},
	}
	for _, j := range jobs {
		_, err := s.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(j.task),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	s.Start()
	logger.Info("background jobs started",
		"reconcile_interval", opts.ReconcileInterval.String(),
		"stats_interval", opts.StatsInterval.String())
	return &Scheduler{s: s}, nil
}

// Stop waits for running jobs and stops the scheduler
func (s *Scheduler) Stop() error {
	return s.s.Shutdown()
}

func runTask(task func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	if err := task(ctx); err != nil {
		logger.Error("background job failed", "error", err)
	}
}

// ReconcileOrders removes checkouts that never got their items
func ReconcileOrders(ctx context.Context) error {
	removed, err := services.GetOrderService().ReconcileOrphans(ctx, OrphanMaxAge)
	if err != nil {
		return fmt.Errorf("reconcile orphaned orders: %w", err)
	}
	if removed > 0 {
		logger.Warn("orphaned orders reconciled", "removed", removed)
	}
	return nil
}

// LogStatistics writes an order and service request summary to the log
func LogStatistics(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var orderTotal, requestTotal, pending int64
	var revenue string
	g.Go(func() error {
		stats, err := services.GetOrderService().GetOrderStats(ctx)
		if err != nil {
			return err
		}
		orderTotal, revenue = stats.TotalOrders, stats.TotalRevenue.StringFixed(2)
		return nil
	})
	g.Go(func() error {
		stats, err := services.GetServiceRequestService().GetStatistics(ctx)
		if err != nil {
			return err
		}
		requestTotal, pending = stats.Total, stats.Pending
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("collect statistics: %w", err)
	}

	logger.Info("statistics heartbeat",
		"orders", orderTotal,
		"order_revenue", revenue,
		"service_requests", requestTotal,
		"pending_requests", pending)
	return nil
}
