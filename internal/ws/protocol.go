package ws

import (
	"encoding/json"
	"fmt"
)

// Upstream message types for internal routing.
type (
	subscribeRequest struct {
		topic string
		ackID *uint64
	}
	unsubscribeRequest struct {
		topic string
		ackID *uint64
	}
	publishRequest struct {
		data json.RawMessage
	}
	pingRequest struct{}
)

type upstreamEnvelope struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	AckID *uint64         `json:"ackId"`
	Data  json.RawMessage `json:"data"`
}

// parseUpstreamMessage parses one JSON frame from a client.
func parseUpstreamMessage(data []byte) (any, error) {
	var env upstreamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}

	switch env.Type {
	case "subscribe":
		return &subscribeRequest{topic: env.Topic, ackID: env.AckID}, nil
	case "unsubscribe":
		return &unsubscribeRequest{topic: env.Topic, ackID: env.AckID}, nil
	case "publish":
		return &publishRequest{data: env.Data}, nil
	case "ping":
		return &pingRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", env.Type)
	}
}

// buildConnectedMessage creates the handshake confirmation. userId is
// omitted for unauthenticated connections.
func buildConnectedMessage(connectionID string, userID *int64) []byte {
	msg := map[string]any{
		"type":         "connected",
		"connectionId": connectionID,
	}
	if userID != nil {
		msg["userId"] = *userID
	}
	data, _ := json.Marshal(msg)
	return data
}

// buildAckMessage creates an acknowledgment for a control message. On
// failure the error carries a protocol-level name plus the reason.
func buildAckMessage(ackID uint64, success bool, errName, errMessage string) []byte {
	msg := map[string]any{
		"type":    "ack",
		"ackId":   ackID,
		"success": success,
	}
	if !success {
		msg["error"] = map[string]any{
			"name":    errName,
			"message": errMessage,
		}
	}
	data, _ := json.Marshal(msg)
	return data
}

// buildDataMessage wraps a published payload for delivery on a topic.
func buildDataMessage(topic string, payload []byte) []byte {
	msg := map[string]any{
		"type":  "message",
		"topic": topic,
		"data":  json.RawMessage(payload),
	}
	data, _ := json.Marshal(msg)
	return data
}

// buildPongMessage answers a client ping.
func buildPongMessage() []byte {
	data, _ := json.Marshal(map[string]any{"type": "pong"})
	return data
}
