// Package feed re-exports any notify.Multiplexer as an SSE stream over
// HTTP, the way kujo re-exported the train guide's snapshot feed: one
// named stream per bridged Observable, JSON-encoded events.
package feed

import (
	"encoding/json"
	"net/http"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/raildispatch/railcore/notify"
)

// Server bridges one or more named Multiplexers to Server-Sent Events
// streams under a single http.Handler.
type Server struct {
	s *sse.Server
}

// NewServer returns an empty bridge; call Bridge for each Observable to
// expose before serving.
func NewServer() *Server {
	return &Server{s: sse.New()}
}

// Bridge subscribes to mux under comment and forwards every event it
// produces, JSON-encoded, to the named SSE stream. The subscription lives
// for the lifetime of the Server; there is no Unbridge, mirroring the
// feed's original one-shot wiring.
func Bridge[E any](s *Server, stream, comment string, mux *notify.Multiplexer[E]) {
	s.s.CreateStream(stream)
	ch := make(chan E)
	mux.Subscribe(comment, ch)
	go func() {
		defer mux.Unsubscribe(ch)
		for e := range ch {
			data, err := json.Marshal(e)
			if err != nil {
				zap.S().Warnw("feed: marshal event", "stream", stream, "error", err)
				continue
			}
			s.s.TryPublish(stream, &sse.Event{Data: data})
		}
	}()
}

// ServeHTTP lets Server be mounted directly as an http.Handler; the stream
// name is taken from the "stream" query parameter, per r3labs/sse's
// convention.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.s.ServeHTTP(w, r)
}
