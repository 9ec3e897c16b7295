package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

type broadcastRequest struct {
	Message string `json:"message"`
}

type broadcastResponse struct {
	Success     bool `json:"success"`
	ClientCount int  `json:"clientCount"`
}

// serveSubscribe is the long-lived server-push endpoint. Each connection
// gets a fresh id, is registered for broadcasts, receives the handshake
// event as its very first frame, and is unregistered on every exit path.
func serveSubscribe(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache, no-transform")
		w.Header().Set("Connection", "keep-alive")
		// Disable buffering in nginx
		w.Header().Set("X-Accel-Buffering", "no")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		clientID := uuid.NewString()
		conn := newConn(clientID)
		reg.Register(conn)
		defer reg.Unregister(clientID)

		if _, err := fmt.Fprintf(w, "data: %s\n\n", marshalEvent(connectedEvent(clientID))); err != nil {
			return
		}
		flusher.Flush()

		logf(cfg, "EVENTS: Client %s connected from %s (%d total)",
			clientID,
			realIP(r),
			reg.Count(),
		)

		for {
			select {
			case payload, open := <-conn.send:
				if !open {
					// Evicted by the registry.
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()

			case <-r.Context().Done():
				logf(cfg, "EVENTS: Client %s disconnected from %s after %s",
					clientID,
					realIP(r),
					time.Since(startTime).Round(time.Millisecond),
				)

				return
			}
		}
	}
}

// serveBroadcast is the boundary entry point for trusted server-side
// actions to inject one event into the fan-out. The payload is treated as
// an opaque blob and delivered verbatim.
func serveBroadcast(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if reg == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "broadcast unavailable")
			return
		}

		var req broadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
			writeJSONError(w, http.StatusBadRequest, "message is required")
			return
		}

		count := reg.Broadcast(req.Message)

		logf(cfg, "BROADCAST: %q to %d clients by %s", req.Message, count, realIP(r))

		writeJSON(w, http.StatusOK, broadcastResponse{
			Success:     true,
			ClientCount: count,
		})
	}
}
