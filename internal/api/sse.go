package api

import (
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
)

// sseWriter frames run events as text/event-stream.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// openSSE commits the event-stream headers. It fails when the response
// cannot be flushed, in which case nothing more should be written.
func openSSE(w http.ResponseWriter) (*sseWriter, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return nil, eris.Wrap(err, "api: response does not support flushing")
	}
	return &sseWriter{w: w, rc: rc}, nil
}

func (s *sseWriter) event(ev leadgen.Event) error {
	data, err := ev.JSON()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return eris.Wrapf(err, "api: write %s event", ev.Type)
	}
	return eris.Wrap(s.rc.Flush(), "api: flush")
}

func (s *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return eris.Wrap(err, "api: write comment")
	}
	return eris.Wrap(s.rc.Flush(), "api: flush")
}
