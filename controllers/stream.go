package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/services"
)

// StreamHeartbeat is how often an idle stream sends a ping event
var StreamHeartbeat = 25 * time.Second

// streamDashboard serves a live dashboard as server-sent events: a
// "snapshot" event first, then one "change" per applied event and a
// "notice" per new row, until the client goes away. The list keeps only
// rows accepted by match.
func streamDashboard[T realtime.Row](
	c *gin.Context,
	table string,
	seed realtime.Seed[T],
	match func(T) bool,
	snapshot func(rows []T, stats realtime.Stats) any,
) {
	ctx := c.Request.Context()

	var rows []T
	var stats realtime.Stats
	dashboard, err := realtime.NewDashboard(ctx, services.GetBroker(), table,
		func(ctx context.Context) ([]T, realtime.Stats, error) {
			var err error
			rows, stats, err = seed(ctx)
			return rows, stats, err
		},
		realtime.WithFilter(match),
	)
	if err != nil {
		var svcErr *services.Error
		if !errors.As(err, &svcErr) {
			err = services.StoreError("Failed to subscribe to changes", err)
		}
		respondError(c, err)
		return
	}
	defer dashboard.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("snapshot", snapshot(rows, stats))
	c.Writer.Flush()
	logger.Debug("dashboard stream opened", "table", table)

	heartbeat := time.NewTicker(StreamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("dashboard stream closed", "table", table)
			return
		case update, ok := <-dashboard.Updates():
			if !ok {
				return
			}
			c.SSEvent("change", update)
		case notice := <-dashboard.Notices():
			c.SSEvent("notice", notice)
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
		}
		c.Writer.Flush()
	}
}
