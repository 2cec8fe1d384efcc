package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"scorelink/internal/wire"
)

// link is one handshaken websocket connection to a remote node.
type link struct {
	nodeID      string
	conn        *websocket.Conn
	outbound    bool
	connectedAt time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func newLink(nodeID string, conn *websocket.Conn, outbound bool) *link {
	return &link{
		nodeID:      nodeID,
		conn:        conn,
		outbound:    outbound,
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

func (l *link) node() Node {
	return Node{ID: l.nodeID, ConnectedAt: l.connectedAt, Outbound: l.outbound}
}

func (l *link) write(ctx context.Context, f wire.Frame) error {
	return l.conn.Write(ctx, websocket.MessageBinary, wire.EncodeFrame(f))
}

func (l *link) close(code websocket.StatusCode, reason string) {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close(code, reason)
	})
}

// dialer returns the id of the node that opened the connection.
func (l *link) dialer(localID string) string {
	if l.outbound {
		return localID
	}
	return l.nodeID
}

// handshake exchanges hello frames and returns the remote node id.
func handshake(ctx context.Context, conn *websocket.Conn, localID string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hello := wire.EncodeFrame(wire.Frame{Type: wire.FrameHello, SourceNodeID: localID})
	if err := conn.Write(ctx, websocket.MessageBinary, hello); err != nil {
		return "", fmt.Errorf("failed to send hello: %w", err)
	}

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read hello: %w", err)
	}
	if typ != websocket.MessageBinary {
		return "", fmt.Errorf("unexpected hello message type %v", typ)
	}

	f, err := wire.DecodeFrame(data)
	if err != nil {
		return "", err
	}
	if f.Type != wire.FrameHello || f.SourceNodeID == "" {
		return "", fmt.Errorf("first frame was not a hello")
	}
	if f.SourceNodeID == localID {
		return "", fmt.Errorf("remote node announced our own id %q", localID)
	}
	return f.SourceNodeID, nil
}
