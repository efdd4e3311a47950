package api

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"backtest-lab/internal/storage"
)

const writeWait = 5 * time.Second

// handleStream pushes progress snapshots over a websocket until the run
// reaches a terminal status or the client goes away.
func (s *Server) handleStream(c *gin.Context) {
	runID := c.Param("id")

	// Resolve unknown runs before upgrading so they get a plain 404.
	if _, err := s.runs.GetRun(c.Request.Context(), runID); err != nil {
		s.writeError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reader goroutine notices client close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		p, err := s.runs.GetProgress(ctx, runID)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("progress stream failed", zap.String("run_id", runID), zap.Error(err))
			}
			closeStream(conn, websocket.CloseInternalServerErr, "progress unavailable")
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(p); err != nil {
			return
		}
		if p.Status.IsTerminal() {
			closeStream(conn, websocket.CloseNormalClosure, string(p.Status))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
