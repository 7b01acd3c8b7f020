package bulk

import (
	"encoding/json"
	"io"

	"go.uber.org/zap"
)

// NDJSONWriter drains a job's event channel onto a writer, one JSON object
// per line. A failed write stops output but never stops draining, so the
// producer is not stalled by a departed client.
type NDJSONWriter struct {
	w       io.Writer
	enc     *json.Encoder
	flush   func()
	broken  bool
	written int
}

// NewNDJSONWriter wraps w. Writers with a Flush method (http.Flusher) are
// flushed after every event.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	n := &NDJSONWriter{w: w, enc: json.NewEncoder(w)}
	if f, ok := w.(interface{ Flush() }); ok {
		n.flush = f.Flush
	}
	return n
}

// Drain consumes events until the channel closes and returns how many were
// written successfully.
func (n *NDJSONWriter) Drain(events <-chan Event) int {
	for ev := range events {
		n.Write(ev)
	}
	return n.written
}

// Write encodes one event. Errors are logged once and swallowed.
func (n *NDJSONWriter) Write(ev Event) {
	if n.broken {
		return
	}
	if err := n.enc.Encode(ev); err != nil {
		n.broken = true
		zap.L().Warn("bulk: progress stream write failed, continuing without client",
			zap.String("job", ev.JobID),
			zap.Error(err),
		)
		return
	}
	n.written++
	if n.flush != nil {
		n.flush()
	}
}
