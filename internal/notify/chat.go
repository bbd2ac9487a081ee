package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const chatWriteWait = 10 * time.Second

// chatFrame is the JSON payload written to the chat bridge socket.
type chatFrame struct {
	AlertID string            `json:"alert_id"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// ChatAdapter delivers alert notifications over a websocket connection to
// a chat bridge process, which fans the message out to the organisation's
// configured chat target (Slack, Discord, etc). The bridge's own transport
// integration is out of scope here; this adapter only owns the
// ingress-to-bridge hop.
type ChatAdapter struct {
	dialer *websocket.Dialer
}

// NewChatAdapter builds a ChatAdapter using default dial timeouts.
func NewChatAdapter() *ChatAdapter {
	return &ChatAdapter{dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}}
}

// Channel implements Adapter.
func (a *ChatAdapter) Channel() Channel { return ChannelChat }

// Send dials msg.Endpoint, writes one JSON text frame, and closes the
// connection. A fresh connection per message keeps the adapter stateless
// and avoids needing a reconnect policy for an idle bridge link.
func (a *ChatAdapter) Send(ctx context.Context, msg Message) error {
	if msg.Endpoint == "" {
		return fmt.Errorf("notify: chat adapter requires a bridge endpoint")
	}

	conn, _, err := a.dialer.DialContext(ctx, msg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: chat dial: %w", err)
	}
	defer conn.Close()

	frame := chatFrame{AlertID: msg.AlertID, Subject: msg.Subject, Body: msg.Body, Meta: msg.Metadata}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("notify: chat encode: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("notify: chat write: %w", err)
	}
	return conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
