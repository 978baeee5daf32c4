package builder

import (
	"bytes"
	"sync"
	"time"

	"github.com/zulandar/roundhouse/internal/models"
	"gorm.io/gorm"
)

// chunkWriter implements io.Writer, buffering combined output and flushing
// it to build_logs in sequence-numbered chunks.
type chunkWriter struct {
	buildID uint

	mu      sync.Mutex
	buf     bytes.Buffer
	seq     int
	writeFn func(models.BuildLog) error
}

// newChunkWriter creates a chunkWriter that flushes via db.Create.
func newChunkWriter(db *gorm.DB, buildID uint) *chunkWriter {
	return &chunkWriter{
		buildID: buildID,
		writeFn: func(chunk models.BuildLog) error {
			return db.Create(&chunk).Error
		},
	}
}

// Write appends bytes to the internal buffer.
func (w *chunkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// Flush writes the accumulated buffer as the next chunk and resets it.
func (w *chunkWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return nil
	}

	content := w.buf.String()
	w.buf.Reset()
	seq := w.seq
	w.seq++

	return w.writeFn(models.BuildLog{
		BuildID:   w.buildID,
		Seq:       seq,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

// Close performs a final flush.
func (w *chunkWriter) Close() error {
	return w.Flush()
}
