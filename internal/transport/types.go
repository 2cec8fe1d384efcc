// Package transport connects nodes over websocket links and delivers
// path-addressed binary messages between them.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNodeNotConnected is returned when sending to a node with no open link.
	ErrNodeNotConnected = errors.New("node not connected")
	// ErrHubClosed is returned after Stop.
	ErrHubClosed = errors.New("transport hub closed")
)

// Node is a reachable peer.
type Node struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connectedAt"`
	Outbound    bool      `json:"outbound"`
}

// Message is one inbound frame delivered to a handler. SourceNodeID is the id the
// remote side announced during the handshake.
type Message struct {
	SourceNodeID string
	Path         string
	Data         []byte
}

// MessageHandler processes one inbound message.
type MessageHandler func(ctx context.Context, msg Message)

// Config describes the local node and the peers it should dial.
type Config struct {
	NodeID           string
	Peers            []string
	HandshakeTimeout time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	MaxFrameBytes    int64
}
