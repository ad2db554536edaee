package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/foreman/pkg/types"
	"github.com/gin-gonic/gin"
)

// keepaliveInterval is how often an idle stream sends a comment line
const keepaliveInterval = 15 * time.Second

// streamEvents streams lifecycle events via Server-Sent Events.
// An optional worker query parameter filters by worker name.
func (s *Server) streamEvents(c *gin.Context) {
	if s.cfg.Broker == nil {
		s.fail(c, types.NewError(types.KindConfig, "streamEvents", "", "event streaming is not enabled"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	worker := c.Query("worker")
	sub := s.cfg.Broker.Subscribe()
	defer s.cfg.Broker.Unsubscribe(sub)

	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return
		case <-s.done:
			return
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if worker != "" && ev.Worker != worker {
				continue
			}

			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}

			fmt.Fprintf(c.Writer, "id: %s\n", ev.ID)
			fmt.Fprintf(c.Writer, "event: %s\n", ev.Type)
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			c.Writer.Flush()
		}
	}
}
