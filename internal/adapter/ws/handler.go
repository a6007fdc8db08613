// Package ws implements the WebSocket adapter for real-time client communication.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TenantResolver extracts the tenant a connecting client belongs to.
type TenantResolver func(r *http.Request) (string, error)

// conn wraps a single WebSocket connection.
type conn struct {
	ws       *websocket.Conn
	cancel   context.CancelFunc
	tenantID string
}

// Hub manages all active WebSocket connections and fans messages out per tenant.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*conn]struct{}
	origins []string
	resolve TenantResolver
}

// NewHub creates a hub accepting upgrades from origins, the same
// comma-separated list the CORS middleware takes. An empty list or "*"
// skips the origin check. A nil resolver reads the tenant from the
// X-Tenant-ID header or the tenant_id query parameter, since browsers cannot
// set headers on upgrade.
func NewHub(origins string, resolve TenantResolver) *Hub {
	if resolve == nil {
		resolve = tenantFromRequest
	}
	return &Hub{
		conns:   make(map[*conn]struct{}),
		resolve: resolve,
		origins: originHosts(origins),
	}
}

// originHosts turns origins into the host patterns websocket.Accept matches
// against. A nil result disables the check.
func originHosts(origins string) []string {
	var hosts []string
	for o := range strings.SplitSeq(origins, ",") {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
			continue
		case o == "*":
			return nil
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		hosts = append(hosts, o)
	}
	return hosts
}

var errNoTenant = errors.New("tenant id is required")

func tenantFromRequest(r *http.Request) (string, error) {
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return id, nil
	}
	if id := r.URL.Query().Get("tenant_id"); id != "" {
		return id, nil
	}
	return "", errNoTenant
}

// HandleWS upgrades the connection to WebSocket and registers it under its tenant.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.resolve(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: len(h.origins) == 0,
		OriginPatterns:     h.origins,
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel, tenantID: tenantID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "tenant_id", tenantID)

	// Read loop detects disconnects and consumes pings.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a message to every connected client regardless of tenant.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.send(ctx, "", msg)
}

// BroadcastToTenant sends a message to the clients of one tenant.
func (h *Hub) BroadcastToTenant(ctx context.Context, tenantID string, msg Message) {
	if tenantID == "" {
		slog.Warn("websocket broadcast without tenant dropped", "type", msg.Type)
		return
	}
	h.send(ctx, tenantID, msg)
}

func (h *Hub) send(ctx context.Context, tenantID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if tenantID == "" || c.tenantID == tenantID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("websocket write failed", "tenant_id", c.tenantID, "error", err)
			h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "tenant_id", c.tenantID)
	}
}
