// Package broadcast fans route playback events out to every viewer of a
// session. It carries three messages: PLAY starts a playback everywhere,
// CLEAR removes one route and CLEAR_ALL removes everything. Delivery is
// best effort with no acknowledgement.
package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/jengzang/routecast/internal/models"
)

// Channel is the name every message is tagged with.
const Channel = "module.routecast"

// Type is the message kind.
type Type string

// Message types
const (
	TypePlay     Type = "PLAY"
	TypeClear    Type = "CLEAR"
	TypeClearAll Type = "CLEAR_ALL"
)

// Message is the wire envelope.
type Message struct {
	Channel string          `json:"channel"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClearPayload names the route to remove. SceneID is informational;
// viewers clear the route wherever they show it.
type ClearPayload struct {
	SceneID string `json:"sceneId,omitempty"`
	RouteID string `json:"routeId"`
}

// ClearAllPayload optionally names the scene the reset was issued from.
type ClearAllPayload struct {
	SceneID string `json:"sceneId,omitempty"`
}

func newMessage(t Type, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return Message{Channel: Channel, Type: t, Payload: data}, nil
}

// NewPlay builds a PLAY message.
func NewPlay(p models.PlaybackPayload) (Message, error) {
	return newMessage(TypePlay, p)
}

// NewClear builds a CLEAR message.
func NewClear(sceneID, routeID string) (Message, error) {
	return newMessage(TypeClear, ClearPayload{SceneID: sceneID, RouteID: routeID})
}

// NewClearAll builds a CLEAR_ALL message.
func NewClearAll(sceneID string) (Message, error) {
	return newMessage(TypeClearAll, ClearAllPayload{SceneID: sceneID})
}

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire message. Messages tagged with another channel are
// reported with ok false.
func Decode(data []byte) (m Message, ok bool, err error) {
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, false, fmt.Errorf("failed to decode message: %w", err)
	}
	if m.Channel != "" && m.Channel != Channel {
		return m, false, nil
	}
	m.Channel = Channel
	return m, true, nil
}

// PlayPayload decodes the payload of a PLAY message.
func (m Message) PlayPayload() (models.PlaybackPayload, error) {
	var p models.PlaybackPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode PLAY payload: %w", err)
	}
	return p, nil
}

// ClearPayload decodes the payload of a CLEAR message.
func (m Message) ClearPayload() (ClearPayload, error) {
	var p ClearPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode CLEAR payload: %w", err)
	}
	return p, nil
}
