package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"candor/internal/utils/sse"
)

var heartbeatInterval = 30 * time.Second

// events streams session notifications until the client goes away
func (h *Handler) events(c *gin.Context) {
	id := c.Param("id")
	v, err := h.interviewer.Get(c.Request.Context(), id)
	if err != nil {
		h.abort(c, err, nil)
		return
	}

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	hub := h.interviewer.Hub()
	ch := make(chan sse.Event, 10)
	hub.Register(id, ch)
	defer hub.Unregister(id, ch)

	h.logger.Debug("SSE client connected", zap.String("sessionId", id))
	c.SSEvent("connected", v)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			h.logger.Debug("SSE client disconnected", zap.String("sessionId", id))
			return false
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().Unix()})
			return true
		case ev := <-ch:
			c.SSEvent(ev.Name, ev.Data)
			return true
		}
	})
}
