package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// streamSSE forwards every chunk of a chat stream as a `data:` frame.
// Headers are committed before the first chunk so the client sees progress immediately.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, stream driving.ChatStream) {
	rc := http.NewResponseController(w)
	// Generation may outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	for {
		chunk, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || r.Context().Err() != nil {
				s.logger.Debug("chat stream cancelled", "error", err)
				return
			}
			s.logger.Error("chat stream failed", "error", err)
			frame, ferr := sseEvent(ErrorResponse{Error: "stream failed"})
			if ferr == nil {
				_, _ = w.Write(frame)
				_ = rc.Flush()
			}
			return
		}

		frame, err := sseEvent(chunk)
		if err != nil {
			s.logger.Error("encode chat chunk", "error", err)
			return
		}
		if _, err := w.Write(frame); err != nil {
			// Client went away; Close in the caller stops generation.
			return
		}
		_ = rc.Flush()

		if chunk.IsFinal {
			return
		}
	}
}
