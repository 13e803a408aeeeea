// Package dev carries the development server's live-reload channel: a
// websocket hub the serve command broadcasts on, and the browser client
// injected into rendered pages.
package dev

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Message is one hub-to-browser instruction.
type Message struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// Message types understood by the client script.
const (
	TypeReload = "reload"
	TypeError  = "error"
	TypeClear  = "clear"
)

// Hub fans reload and error notifications out to every connected browser
// tab. It serves the websocket endpoint itself via http.Handler.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub returns an empty hub. A nil logger means slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		// Dev-only endpoint; any origin may connect.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and holds the connection until the browser
// goes away. Inbound frames are discarded; the channel is one-way.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("reload upgrade failed", "err", err)
		return
	}
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// Reload tells every connected tab to refresh.
func (h *Hub) Reload() { h.send(Message{Type: TypeReload}) }

// ShowError paints the error overlay in every connected tab.
func (h *Hub) ShowError(msg string) { h.send(Message{Type: TypeError, Error: msg}) }

// ClearError removes the overlay.
func (h *Hub) ClearError() { h.send(Message{Type: TypeClear}) }

// send writes msg to every connection, dropping the ones that fail. The
// lock is held across the writes: gorilla connections allow a single writer
// at a time, and dev traffic is too small for the serialization to matter.
func (h *Hub) send(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(msg); err != nil {
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

// Count reports connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

// ClientScript is the live-reload client injected into page heads in
// development mode. It reconnects with backoff and renders error messages
// as a full-page overlay.
const ClientScript = `
<script>
(() => {
  const overlayID = "loom-dev-overlay";
  let delay = 1000;

  const clear = () => {
    const el = document.getElementById(overlayID);
    if (el) el.remove();
  };

  const show = (text) => {
    clear();
    const overlay = document.createElement("div");
    overlay.id = overlayID;
    overlay.style.cssText = "position:fixed;inset:0;z-index:99999;" +
      "background:rgba(20,0,0,0.92);color:#f88;font:13px/1.5 monospace;" +
      "padding:2rem;overflow:auto;white-space:pre-wrap;";
    overlay.textContent = text;
    document.body.appendChild(overlay);
  };

  const connect = () => {
    const scheme = location.protocol === "https:" ? "wss" : "ws";
    const ws = new WebSocket(scheme + "://" + location.host + "/_loom/reload");
    ws.onopen = () => { delay = 1000; clear(); };
    ws.onmessage = (e) => {
      let msg;
      try { msg = JSON.parse(e.data); } catch { return; }
      if (msg.type === "reload") location.reload();
      else if (msg.type === "error") show(msg.error);
      else if (msg.type === "clear") clear();
    };
    ws.onclose = () => {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 15000);
    };
  };

  if (document.readyState === "loading") {
    document.addEventListener("DOMContentLoaded", connect);
  } else {
    connect();
  }
})();
</script>
`
