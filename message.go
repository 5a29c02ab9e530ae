// message.go
// Every frame the relay writes is one of three envelopes: a role assignment,
// a lifecycle notification, or a chat line. They all go through Encode so the
// wire format lives in one place.

package main

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	MsgRole         MessageType = "role"
	MsgNotification MessageType = "notification"
	MsgChat         MessageType = "message"
)

type Role string

const (
	RoleSupport  Role = "support"
	RoleCustomer Role = "customer"
)

type Sender string

const (
	SenderSupport  Sender = "support"
	SenderCustomer Sender = "customer"
	SenderSelf     Sender = "self"
)

// Notification texts sent to the agent or the customers.
const (
	NoticeCustomerConnected    = "new customer connected"
	NoticeCustomerDisconnected = "a customer disconnected"
	NoticeAgentDisconnected    = "support agent disconnected"
)

const (
	greetingSupport  = "You are the support agent."
	greetingCustomer = "Connected to support. Please wait for a reply."
)

// Outbound is implemented by RoleAssignment, Notification and Chat only.
type Outbound interface {
	envelope() Envelope
}

type RoleAssignment struct {
	Role Role
}

func (m RoleAssignment) envelope() Envelope {
	text := greetingCustomer
	if m.Role == RoleSupport {
		text = greetingSupport
	}
	return Envelope{Type: MsgRole, Role: m.Role, Message: &text}
}

type Notification struct {
	Message string
}

func (m Notification) envelope() Envelope {
	return Envelope{Type: MsgNotification, Message: &m.Message}
}

type Chat struct {
	Sender  Sender
	Message string
}

func (m Chat) envelope() Envelope {
	return Envelope{Type: MsgChat, Sender: m.Sender, Message: &m.Message}
}

// Envelope is the JSON shape on the wire. Message is a pointer so an empty
// chat line still carries "message":"".
type Envelope struct {
	Type    MessageType `json:"type"`
	Role    Role        `json:"role,omitempty"`
	Sender  Sender      `json:"sender,omitempty"`
	Message *string     `json:"message,omitempty"`
}

// Text returns the message field, or "" when absent.
func (e Envelope) Text() string {
	if e.Message == nil {
		return ""
	}
	return *e.Message
}

func Encode(m Outbound) ([]byte, error) {
	data, err := json.Marshal(m.envelope())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.envelope().Type, err)
	}
	return data, nil
}

func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	switch e.Type {
	case MsgRole, MsgNotification, MsgChat:
	default:
		return Envelope{}, fmt.Errorf("decode envelope: unknown type %q", e.Type)
	}
	return e, nil
}
