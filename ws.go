package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS attaches a websocket peer to the same registry the SSE endpoint
// feeds, for clients that cannot hold an event-stream open. The push
// model stays one-way: inbound frames are drained and discarded.
func serveWS(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "WS: Upgrade error from %s: %v", realIP(r), err)
			return
		}

		clientID := uuid.NewString()
		conn := newConn(clientID)
		reg.Register(conn)

		logf(cfg, "WS: Client %s connected from %s (%d total)",
			clientID,
			realIP(r),
			reg.Count(),
		)

		go writePump(ws, conn)
		readPump(ws, reg, clientID)
	}
}

func writePump(ws *websocket.Conn, conn *Conn) {
	defer ws.Close()

	// Handshake first, matching the SSE endpoint.
	if err := ws.WriteMessage(websocket.TextMessage, []byte(marshalEvent(connectedEvent(conn.id)))); err != nil {
		return
	}

	for payload := range conn.send {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return
		}
	}
}

func readPump(ws *websocket.Conn, reg *Registry, clientID string) {
	defer func() {
		reg.Unregister(clientID)
		_ = ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
