// client_manager.go
package main

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"support-relay/internal/config"
)

var (
	ErrClientClosed  = errors.New("client closed")
	ErrSendQueueFull = errors.New("send queue full")
	ErrManagerClosed = errors.New("manager stopped")
)

// Peer is a connection as the manager sees it. The manager never owns a
// peer; it only sends to it and, on shutdown, asks it to close.
type Peer interface {
	ID() string
	Send(data []byte) error
	Close()
}

// Manager tracks the support agent and the connected customers.
// agent and customers are read and written only by the Run goroutine.
type Manager struct {
	agent     Peer
	customers map[Peer]bool

	register   chan Peer
	unregister chan Peer
	inbound    chan inbound
	status     chan chan Status
	done       chan struct{}

	log *slog.Logger
}

type inbound struct {
	peer    Peer
	payload string
}

// Status is a snapshot of role occupancy.
type Status struct {
	Agent     bool `json:"agent"`
	Customers int  `json:"customers"`
}

// Client represents a single WebSocket connection.
type Client struct {
	id     string
	socket *websocket.Conn
	cfg    config.ClientConfig
	log    *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}
