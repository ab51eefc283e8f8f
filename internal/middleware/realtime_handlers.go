package middleware

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type realtimeMessage struct {
	Type       string            `json:"type"`
	Collection string            `json:"collection,omitempty"`
	Dashboard  *models.Dashboard `json:"dashboard,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(h.origins, origin)
		},
	}
}

// Realtime streams the user's changes over a websocket. With ?mode=events
// (the default) each change is forwarded as {"type":"change"}; with
// ?mode=dashboard the dashboard is recomputed on every change and only the
// result of the latest recomputation is sent.
func (h *Handler) Realtime(c *gin.Context) {
	userID := c.GetString("userId")
	mode := c.DefaultQuery("mode", "events")
	if mode != "events" && mode != "dashboard" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be events or dashboard"})
		return
	}

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response
		logger.FromContext(c.Request.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	log := logger.FromContext(ctx)

	events, unsubscribe := h.hub.Subscribe(userID)
	defer unsubscribe()

	// the read loop only notices the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var writeMu sync.Mutex
	write := func(fn func() error) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := fn(); err != nil {
			log.Debug("websocket write failed", "error", err)
			cancel()
		}
	}
	send := func(m realtimeMessage) { write(func() error { return conn.WriteJSON(m) }) }

	var recompute *realtime.Recomputer[*models.Dashboard]
	if mode == "dashboard" {
		recompute = realtime.NewRecomputer(
			func(ctx context.Context) (*models.Dashboard, error) {
				return h.portfolio.Dashboard(ctx, userID)
			},
			func(d *models.Dashboard) { send(realtimeMessage{Type: "dashboard", Dashboard: d}) },
			func(err error) {
				// keep the last good dashboard on the client
				log.Warn("dashboard recomputation failed", "error", err)
				send(realtimeMessage{Type: "error", Error: "dashboard temporarily unavailable"})
			},
		)
		defer recompute.Stop()
		recompute.Trigger(ctx)
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	log.Info("realtime subscriber connected", "mode", mode)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) })
		case e, ok := <-events:
			if !ok {
				return
			}
			if recompute != nil {
				recompute.Trigger(ctx)
				continue
			}
			send(realtimeMessage{Type: "change", Collection: e.Collection})
		}
	}
}
