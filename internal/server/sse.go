package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/roundhouse/internal/cierr"
	"github.com/zulandar/roundhouse/internal/scheduler"
)

// logPollInterval is how often the stream checks for new chunks.
const logPollInterval = 500 * time.Millisecond

// logChunkEvent is the payload of one "log" SSE event.
type logChunkEvent struct {
	Seq     int    `json:"seq"`
	Content string `json:"content"`
}

// handleBuildLog streams a build's output as SSE. The stream starts at the
// requested offset (default 0, so it is restartable), follows the build
// while it runs, and ends with an "eof" event once the build is terminal
// and all chunks are delivered.
func handleBuildLog(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid build id"})
			return
		}
		offset := 0
		if raw := c.Query("offset"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
				offset = n
			}
		}

		// Validate the build before committing to a stream response.
		if _, err := sched.GetBuild(uint(id)); err != nil {
			if errors.Is(err, cierr.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "build not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ctx := c.Request.Context()
		nextSeq := offset
		ticker := time.NewTicker(logPollInterval)
		defer ticker.Stop()

		for {
			chunks, terminal, err := sched.Logs(uint(id), nextSeq)
			if err != nil {
				writeSSE(c.Writer, "error", gin.H{"error": "log read failed"})
				c.Writer.Flush()
				return
			}
			for _, chunk := range chunks {
				writeSSE(c.Writer, "log", logChunkEvent{Seq: chunk.Seq, Content: chunk.Content})
				nextSeq = chunk.Seq + 1
			}
			if len(chunks) > 0 {
				c.Writer.Flush()
			}
			if terminal && len(chunks) == 0 {
				writeSSE(c.Writer, "eof", gin.H{"next_seq": nextSeq})
				c.Writer.Flush()
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
