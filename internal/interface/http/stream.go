package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/interface/http/handlers"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STREAM (SSE)
// ══════════════════════════════════════════════════════════════════════════════

const eventProgress = "progress"

// handleProgressStream sends the current progress, then every confirmed
// change, as "progress" events. A comment line is written every heartbeat
// interval to keep proxies from closing the connection.
func (s *Server) handleProgressStream(c *gin.Context) {
	userID := handlers.UserID(c)

	if s.deps.Progress == nil || (s.deps.StreamEnabled != nil && !s.deps.StreamEnabled(userID)) {
		handlers.Fail(c, http.StatusNotFound, handlers.APIError{Code: handlers.CodeNotFound, Message: "progress stream is not available"})
		return
	}

	ctx := c.Request.Context()
	log := logger.FromContext(ctx).With(logger.UserID(userID))

	// Subscribe before reading so no change between the two is lost.
	updates, unsubscribe := s.deps.Progress.Subscribe(userID)
	defer unsubscribe()

	current, err := s.deps.Progress.Current(ctx, userID)
	if err != nil {
		handlers.FailWithError(c, err)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if err := writeEvent(c, eventProgress, current); err != nil {
		return
	}

	heartbeat := time.NewTicker(s.config.StreamHeartbeat)
	defer heartbeat.Stop()

	log.Debug("progress stream opened")
	defer log.Debug("progress stream closed")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.streams:
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(c, eventProgress, p); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func writeEvent(c *gin.Context, name string, p profile.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
