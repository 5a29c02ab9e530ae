// manager.go

// Central event loop. The manager assigns roles on connect, routes chat by
// sender role, and tells the remaining side when someone leaves.
package main

import (
	"context"
	"log/slog"
)

func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		customers:  make(map[Peer]bool),
		register:   make(chan Peer),
		unregister: make(chan Peer),
		inbound:    make(chan inbound),
		status:     make(chan chan Status),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run handles events until ctx is cancelled, then closes every peer it
// still knows about.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	for {
		select {
		case p := <-m.register:
			m.onConnect(p)
		case p := <-m.unregister:
			m.onDisconnect(p)
		case in := <-m.inbound:
			m.onMessage(in.peer, in.payload)
		case reply := <-m.status:
			reply <- m.snapshot()
		case <-ctx.Done():
			m.closeAll()
			return nil
		}
	}
}

// Register classifies p. It returns once the role assignment is queued.
func (m *Manager) Register(p Peer) error {
	select {
	case m.register <- p:
		return nil
	case <-m.done:
		return ErrManagerClosed
	}
}

func (m *Manager) Unregister(p Peer) {
	select {
	case m.unregister <- p:
	case <-m.done:
	}
}

// Deliver routes one inbound payload from p.
func (m *Manager) Deliver(p Peer, payload string) {
	select {
	case m.inbound <- inbound{peer: p, payload: payload}:
	case <-m.done:
	}
}

func (m *Manager) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case m.status <- reply:
	case <-m.done:
		return Status{}, ErrManagerClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	return <-reply, nil
}

func (m *Manager) onConnect(p Peer) {
	if m.agent == nil {
		m.agent = p
		m.log.Info("support agent connected", "client", p.ID())
		m.send(p, RoleAssignment{Role: RoleSupport})
		return
	}

	m.customers[p] = true
	m.log.Info("customer connected", "client", p.ID(), "customers", len(m.customers))
	m.send(p, RoleAssignment{Role: RoleCustomer})
	m.send(m.agent, Notification{Message: NoticeCustomerConnected})
}

func (m *Manager) onMessage(p Peer, payload string) {
	switch {
	case p == m.agent:
		m.log.Debug("relaying agent message", "client", p.ID(), "customers", len(m.customers))
		m.broadcast(m.customerList(), Chat{Sender: SenderSupport, Message: payload})
	case m.customers[p]:
		if m.agent != nil {
			m.send(m.agent, Chat{Sender: SenderCustomer, Message: payload})
		} else {
			m.log.Debug("no support agent, echo only", "client", p.ID())
		}
	default:
		m.log.Debug("message from unregistered client dropped", "client", p.ID())
		return
	}
	m.send(p, Chat{Sender: SenderSelf, Message: payload})
}

func (m *Manager) onDisconnect(p Peer) {
	switch {
	case p == m.agent:
		m.agent = nil
		m.log.Info("support agent disconnected", "client", p.ID(), "customers", len(m.customers))
		m.broadcast(m.customerList(), Notification{Message: NoticeAgentDisconnected})
	case m.customers[p]:
		delete(m.customers, p)
		m.log.Info("customer disconnected", "client", p.ID(), "customers", len(m.customers))
		if m.agent != nil {
			m.send(m.agent, Notification{Message: NoticeCustomerDisconnected})
		}
	}
}

func (m *Manager) snapshot() Status {
	return Status{Agent: m.agent != nil, Customers: len(m.customers)}
}

func (m *Manager) customerList() []Peer {
	peers := make([]Peer, 0, len(m.customers))
	for p := range m.customers {
		peers = append(peers, p)
	}
	return peers
}

func (m *Manager) closeAll() {
	if m.agent != nil {
		m.agent.Close()
		m.agent = nil
	}
	for p := range m.customers {
		p.Close()
		delete(m.customers, p)
	}
}

func (m *Manager) send(p Peer, msg Outbound) {
	data, err := Encode(msg)
	if err != nil {
		m.log.Error("encode failed", "client", p.ID(), "error", err)
		return
	}
	m.deliverTo(p, data)
}

// broadcast encodes msg once and sends it to every peer in peers.
func (m *Manager) broadcast(peers []Peer, msg Outbound) {
	if len(peers) == 0 {
		return
	}
	data, err := Encode(msg)
	if err != nil {
		m.log.Error("encode failed", "error", err)
		return
	}
	for _, p := range peers {
		m.deliverTo(p, data)
	}
}

// Failed sends are logged and dropped; the peer's own close event is what
// removes it from the session.
func (m *Manager) deliverTo(p Peer, data []byte) {
	if err := p.Send(data); err != nil {
		m.log.Warn("send failed", "client", p.ID(), "error", err)
	}
}
