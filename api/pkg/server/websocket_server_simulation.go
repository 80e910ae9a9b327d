package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bakeops/bakeops/api/pkg/pubsub"
	"github.com/bakeops/bakeops/api/pkg/system"
)

var simulationWebsocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// startSimulationWebSocketServer relays one simulation's broadcast frames
// (driver-tick snapshots and inventory updates) to a connected client.
func (apiServer *BakeOpsAPIServer) startSimulationWebSocketServer(
	r *mux.Router,
	path string,
) {

	r.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		simulationID := r.URL.Query().Get("simulation_id")
		if simulationID == "" {
			log.Error().Msgf("No simulation_id supplied")
			http.Error(w, "No simulation_id supplied", http.StatusBadRequest)
			return
		}

		if _, err := apiServer.manager.GetEngine(simulationID); err != nil {
			log.Error().Msgf("Unknown simulation: %s", simulationID)
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		conn, err := simulationWebsocketUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Msgf("Error upgrading websocket: %s", err.Error())
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		defer conn.Close()

		// several clients can watch the same simulation, tag each connection
		connID := system.GenerateUUID()

		// Mutex for thread-safe WebSocket writes (ping and subscription writes can race)
		var wsMu sync.Mutex

		// Start server-initiated ping goroutine to keep connection alive through proxies/firewalls
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					wsMu.Lock()
					err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second))
					wsMu.Unlock()
					if err != nil {
						log.Debug().Err(err).Str("simulation_id", simulationID).Str("connection_id", connID).Msg("simulation WebSocket ping failed, connection closing")
						return
					}
				}
			}
		}()

		sub, err := apiServer.pubsub.Subscribe(r.Context(), pubsub.GetSimulationQueue(simulationID), func(payload []byte) error {
			wsMu.Lock()
			writeErr := conn.WriteMessage(websocket.TextMessage, payload)
			wsMu.Unlock()
			if writeErr != nil {
				log.Error().Msgf("Error writing to websocket: %s", writeErr.Error())
			}
			return nil
		})
		if err != nil {
			log.Error().Msgf("Error subscribing to simulation updates: %s", err.Error())
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				log.Error().Msgf("failed to unsubscribe: %v", err)
			}
		}()

		log.Trace().
			Str("simulation_id", simulationID).
			Str("connection_id", connID).
			Msg("simulation websocket connected")

		// we block on reading messages from the client
		// if we get any errors then we break and this will close
		// the connection and unsubscribe from the broadcast
		for {
			messageType, _, err := conn.ReadMessage()
			if err != nil {
				log.Trace().Msgf("Client disconnected: %s", err.Error())
				break
			}
			if messageType == websocket.CloseMessage {
				log.Trace().Msgf("Received close frame from client.")
				break
			}
		}
	})
}
