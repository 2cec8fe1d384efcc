package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"scorelink/internal/constants"
	"scorelink/internal/privacy"
	"scorelink/internal/retry"
	"scorelink/internal/wire"
)

var errDuplicateLink = errors.New("duplicate link")

// Hub keeps at most one link per remote node. It accepts inbound links through
// ServeHTTP and dials every configured peer, reconnecting with backoff.
type Hub struct {
	cfg    Config
	logger *logrus.Logger

	mu            sync.RWMutex
	links         map[string]*link
	handlers      map[string]MessageHandler
	listeners     []func(Node)
	downListeners []func(Node)
	closed        bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(cfg Config, logger *logrus.Logger) *Hub {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = time.Duration(constants.DefaultHandshakeTimeoutSec) * time.Second
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = time.Duration(constants.DefaultReconnectInitialMs) * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = time.Duration(constants.DefaultReconnectMaxSec) * time.Second
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = constants.DefaultMaxFrameBytes
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		links:    make(map[string]*link),
		handlers: make(map[string]MessageHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// NodeID returns the local node id.
func (h *Hub) NodeID() string {
	return h.cfg.NodeID
}

// Handle registers the handler for frames addressed to path, replacing any previous one.
func (h *Hub) Handle(path string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[path] = handler
}

// OnNodeConnected registers fn to be called every time a link to a node comes up.
func (h *Hub) OnNodeConnected(fn func(Node)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// OnNodeDisconnected registers fn to be called when a node's last link closes.
func (h *Hub) OnNodeDisconnected(fn func(Node)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.downListeners = append(h.downListeners, fn)
}

// Start begins dialing the configured peers. The hub stops when ctx is cancelled
// or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			h.cancel()
		case <-h.ctx.Done():
		}
	}()

	for _, peer := range h.cfg.Peers {
		h.wg.Add(1)
		go h.dialLoop(peer)
	}

	h.logger.WithFields(logrus.Fields{
		"node_id": privacy.MaskNodeID(h.cfg.NodeID),
		"peers":   len(h.cfg.Peers),
	}).Info("Transport hub started")
}

// Stop closes every link and waits for dialers and handlers to return.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	links := make([]*link, 0, len(h.links))
	for _, l := range h.links {
		links = append(links, l)
	}
	h.mu.Unlock()

	h.cancel()
	for _, l := range links {
		l.close(websocket.StatusGoingAway, "shutting down")
	}
	h.wg.Wait()
	h.logger.Info("Transport hub stopped")
}

// ServeHTTP upgrades an inbound request to a link and blocks until the link closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "transport closed", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	// links outlive the server's read and write timeouts
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to accept websocket")
		return
	}

	if _, err := h.runConn(conn, false); err != nil && !errors.Is(err, errDuplicateLink) {
		h.logger.WithError(err).Debug("Inbound link ended")
	}
}

// ConnectedNodes lists nodes with an open link, sorted by id.
func (h *Hub) ConnectedNodes(ctx context.Context) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	nodes := make([]Node, 0, len(h.links))
	for _, l := range h.links {
		nodes = append(nodes, l.node())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// SendMessage writes one frame to nodeID. It returns once the frame is handed to the
// connection or ctx expires.
func (h *Hub) SendMessage(ctx context.Context, nodeID, path string, data []byte) error {
	h.mu.RLock()
	l, ok := h.links[nodeID]
	closed := h.closed
	h.mu.RUnlock()

	if closed {
		return ErrHubClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotConnected, nodeID)
	}

	frame := wire.Frame{Path: path, SourceNodeID: h.cfg.NodeID, Data: data}
	if size := len(wire.EncodeFrame(frame)); int64(size) > h.cfg.MaxFrameBytes {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d", size, h.cfg.MaxFrameBytes)
	}

	if err := l.write(ctx, frame); err != nil {
		return fmt.Errorf("failed to write to node: %w", err)
	}
	return nil
}

// runConn handshakes, registers and serves one connection until it closes. It
// returns the remote node id once the handshake succeeded.
func (h *Hub) runConn(conn *websocket.Conn, outbound bool) (string, error) {
	conn.SetReadLimit(h.cfg.MaxFrameBytes)

	remoteID, err := handshake(h.ctx, conn, h.cfg.NodeID, h.cfg.HandshakeTimeout)
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return "", err
	}

	l := newLink(remoteID, conn, outbound)
	if !h.register(l) {
		l.close(websocket.StatusNormalClosure, "duplicate link")
		return remoteID, errDuplicateLink
	}

	h.readLoop(l)
	h.unregister(l)
	return remoteID, nil
}

// register installs l. When both nodes dial each other, the link opened by the node
// with the smaller id wins on both sides.
func (h *Hub) register(l *link) bool {
	local := h.cfg.NodeID

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}

	var replaced *link
	if existing, ok := h.links[l.nodeID]; ok {
		preferredDialer := local
		if l.nodeID < local {
			preferredDialer = l.nodeID
		}
		if existing.dialer(local) != l.dialer(local) && existing.dialer(local) == preferredDialer {
			h.mu.Unlock()
			return false
		}
		replaced = existing
	}

	h.links[l.nodeID] = l
	listeners := append([]func(Node){}, h.listeners...)
	h.wg.Add(1)
	h.mu.Unlock()

	if replaced != nil {
		replaced.close(websocket.StatusNormalClosure, "replaced by newer link")
	}

	h.logger.WithFields(logrus.Fields{
		"node_id":  privacy.MaskNodeID(l.nodeID),
		"outbound": l.outbound,
	}).Info("Node connected")

	node := l.node()
	go func() {
		defer h.wg.Done()
		for _, fn := range listeners {
			fn(node)
		}
	}()
	return true
}

func (h *Hub) unregister(l *link) {
	var (
		removed   bool
		listeners []func(Node)
	)
	h.mu.Lock()
	if current, ok := h.links[l.nodeID]; ok && current == l {
		delete(h.links, l.nodeID)
		removed = true
		listeners = append(listeners, h.downListeners...)
	}
	h.mu.Unlock()

	l.close(websocket.StatusNormalClosure, "")
	if !removed {
		// replaced by a newer link; the node is still connected
		return
	}
	h.logger.WithField("node_id", privacy.MaskNodeID(l.nodeID)).Info("Node disconnected")

	node := l.node()
	for _, fn := range listeners {
		fn(node)
	}
}

func (h *Hub) readLoop(l *link) {
	for {
		typ, data, err := l.conn.Read(h.ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && h.ctx.Err() == nil {
				h.logger.WithError(err).WithField("node_id", privacy.MaskNodeID(l.nodeID)).Debug("Link read failed")
			}
			return
		}
		if typ != websocket.MessageBinary {
			h.logger.WithField("node_id", privacy.MaskNodeID(l.nodeID)).Warn("Dropping non-binary frame")
			continue
		}

		f, err := wire.DecodeFrame(data)
		if err != nil {
			h.logger.WithError(err).WithField("node_id", privacy.MaskNodeID(l.nodeID)).Warn("Dropping undecodable frame")
			continue
		}
		if f.Type != wire.FrameMessage {
			continue
		}
		h.dispatch(l, f)
	}
}

// dispatch runs the path's handler on its own goroutine.
func (h *Hub) dispatch(l *link, f wire.Frame) {
	h.mu.RLock()
	handler := h.handlers[f.Path]
	h.mu.RUnlock()

	if handler == nil {
		h.logger.WithFields(logrus.Fields{
			"node_id": privacy.MaskNodeID(l.nodeID),
			"path":    f.Path,
		}).Debug("No handler for path")
		return
	}

	msg := Message{SourceNodeID: l.nodeID, Path: f.Path, Data: f.Data}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		handler(h.ctx, msg)
	}()
}

func (h *Hub) dialLoop(peerURL string) {
	defer h.wg.Done()

	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: h.cfg.ReconnectInitial,
		MaxDelay:     h.cfg.ReconnectMax,
		Multiplier:   2.0,
		Jitter:       true,
	})
	logger := h.logger.WithField("peer", privacy.MaskPeerURL(peerURL))

	var (
		attempt int
		knownID string
	)
	for h.ctx.Err() == nil {
		// the remote node already dialed us; wait for that link to drop
		if knownID != "" {
			h.mu.RLock()
			existing := h.links[knownID]
			h.mu.RUnlock()
			if existing != nil {
				select {
				case <-existing.done:
					continue
				case <-h.ctx.Done():
					return
				}
			}
		}

		dialCtx, cancel := context.WithTimeout(h.ctx, h.cfg.HandshakeTimeout)
		conn, _, err := websocket.Dial(dialCtx, peerURL, nil)
		cancel()

		if err == nil {
			var id string
			id, err = h.runConn(conn, true)
			if id != "" {
				knownID = id
			}
		}

		if err == nil {
			attempt = 1
		} else {
			attempt++
			if h.ctx.Err() == nil && !errors.Is(err, errDuplicateLink) {
				logger.WithError(err).WithField("attempt", attempt).Debug("Peer dial failed")
			}
		}

		if !h.sleep(backoff.Delay(attempt)) {
			return
		}
	}
}

func (h *Hub) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-h.ctx.Done():
		return false
	}
}
