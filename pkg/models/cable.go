package models

import (
	"encoding/json"
	"fmt"
)

// Commands a client sends on the cable
const (
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
	CommandMessage     = "message"
)

// Protocol frame types the server sends outside of channel messages
const (
	FrameWelcome             = "welcome"
	FramePing                = "ping"
	FrameConfirmSubscription = "confirm_subscription"
	FrameRejectSubscription  = "reject_subscription"
	FrameDisconnect          = "disconnect"
)

// Command is a client to server frame; Identifier and Data are JSON encoded strings
type Command struct {
	Command    string `json:"command"`
	Identifier string `json:"identifier"`
	Data       string `json:"data,omitempty"`
}

// ChannelIdentifier is the decoded form of Command.Identifier
type ChannelIdentifier struct {
	Channel string `json:"channel"`
}

// ActionData is the decoded form of Command.Data for the "message" command
type ActionData struct {
	Action         string `json:"action"`
	NotificationID int64  `json:"notification_id,omitempty"`
}

// Frame is every server to client frame. Protocol frames set Type;
// channel messages set Identifier and Message.
type Frame struct {
	Type       string          `json:"type,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// EventMessage is the part of Frame.Message every channel message carries
type EventMessage struct {
	Type string `json:"type"`
}

// NotificationsIdentifier returns the identifier string of NotificationsChannel
func NotificationsIdentifier() string {
	return Identifier(NotificationsChannel)
}

// Identifier encodes a channel name the way clients send it
func Identifier(channel string) string {
	b, _ := json.Marshal(ChannelIdentifier{Channel: channel})
	return string(b)
}

// ParseIdentifier decodes a Command.Identifier
func ParseIdentifier(identifier string) (ChannelIdentifier, error) {
	var id ChannelIdentifier
	if err := json.Unmarshal([]byte(identifier), &id); err != nil {
		return id, fmt.Errorf("invalid identifier: %w", err)
	}
	return id, nil
}

// EventBody flattens payload into a JSON object carrying "type": eventType.
// Payload must marshal to a JSON object or null.
func EventBody(eventType string, payload any) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		if string(raw) != "null" {
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, fmt.Errorf("%s payload is not an object: %w", eventType, err)
			}
		}
	}

	typ, _ := json.Marshal(eventType)
	fields["type"] = typ
	return json.Marshal(fields)
}

// EncodeEvent builds the full channel message frame for one event
func EncodeEvent(identifier, eventType string, payload any) ([]byte, error) {
	body, err := EventBody(eventType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Identifier: identifier, Message: body})
}
