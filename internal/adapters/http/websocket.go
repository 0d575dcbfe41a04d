package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/wajahatashraf/beacon-scraper/internal/adapters/nats"
)

// wsMessage is sent by clients to change what they receive.
type wsMessage struct {
	Action  string `json:"action"`   // "subscribe" | "unsubscribe"
	Channel string `json:"channel"`  // "passes" | "layers" | "tiles"
	LayerID string `json:"layer_id"` // optional, "" = all layers
}

// channelSubject maps a client channel and optional layer to a NATS subject.
func channelSubject(channel, layerID string) (string, bool) {
	var prefix string
	switch channel {
	case "", "passes":
		prefix = natsadapter.SubjectPass
	case "layers":
		prefix = natsadapter.SubjectLayer
	case "tiles":
		prefix = natsadapter.SubjectTile
	default:
		return "", false
	}
	if layerID == "" {
		return prefix + "*", true
	}
	return prefix + layerID, true
}

// WebSocketHandler relays scrape progress events from NATS to the client.
// New clients receive pass and layer events; tile events are opt-in.
// Clients send e.g. {"action":"subscribe","channel":"tiles","layer_id":"7"}.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remote := c.RemoteAddr().String()
		if nc == nil {
			_ = c.WriteJSON(map[string]string{"error": "progress stream unavailable"})
			return
		}
		slog.Debug("ws client connected", "remote", remote)

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		relay := func(msg *nats.Msg) {
			_ = writeJSON(json.RawMessage(msg.Data))
		}

		subs := make(map[string]*nats.Subscription)
		defer func() {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			slog.Debug("ws client disconnected", "remote", remote)
		}()

		for _, ch := range []string{"passes", "layers"} {
			subject, _ := channelSubject(ch, "")
			s, err := nc.Subscribe(subject, relay)
			if err != nil {
				slog.Warn("ws default subscribe", "subject", subject, "error", err)
				return
			}
			subs[subject] = s
		}

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			subject, ok := channelSubject(m.Channel, m.LayerID)
			if !ok {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				s, err := nc.Subscribe(subject, relay)
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				s, exists := subs[subject]
				if !exists {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
					continue
				}
				_ = s.Unsubscribe()
				delete(subs, subject)
				_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}
	}
}
