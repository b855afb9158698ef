package results

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"golang.org/x/net/websocket"
)

// A Viewer streams a Log to websocket clients as JSON
// messages, one per record.
//
// A client connecting to the handler receives every
// record logged so far followed by new ones as they are
// written.
// The "from" query parameter skips the first records, and
// the "phase" query parameter restricts the stream to one
// phase.
type Viewer struct {
	Log    *Log
	Logger *log.Logger
}

// Handler returns the websocket handler.
func (v *Viewer) Handler() http.Handler {
	return websocket.Handler(v.serve)
}

// ListenAndServe serves the handler at /results.
func (v *Viewer) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/results", v.Handler())
	return http.ListenAndServe(addr, mux)
}

func (v *Viewer) serve(ws *websocket.Conn) {
	defer ws.Close()

	query := ws.Request().URL.Query()
	start := 0
	if from := query.Get("from"); from != "" {
		if n, err := strconv.Atoi(from); err == nil && n >= 0 {
			start = n
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Clients never send anything; a failed read means the
	// connection is gone.
	go func() {
		var discard string
		for websocket.Message.Receive(ws, &discard) == nil {
		}
		cancel()
	}()

	records := v.Log.Read(ctx, start, -1)
	if phase := query.Get("phase"); phase != "" {
		records = v.Log.ReadPhase(ctx, phase, start, -1)
	}
	for r := range records {
		if err := websocket.JSON.Send(ws, r); err != nil {
			if v.Logger != nil {
				v.Logger.Printf("[WARN] viewer: %v", err)
			}
			return
		}
	}
}
