package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000 // 10s in ms
)

// wsEnvelope is every server message: "state" with an Overview, or "error".
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Any origin may subscribe.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is a client message. "refresh" asks for an immediate state
// push; "interval" changes the push cadence, Data holding a duration string.
type wsRequest struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// the reader only decodes; every write happens in this goroutine
	done := make(chan struct{})
	requests := make(chan wsRequest, 4)
	go h.startReader(conn, requests, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	if err := h.sendState(conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		var err error
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		case <-ticker.C:
			err = h.sendState(conn)
		case req := <-requests:
			err = h.handleRequest(conn, req, ticker)
		}
		if err != nil {
			if h.log != nil {
				h.log.Infow("ws_write_failed", "err", err)
			}
			return
		}
	}
}

func (h *Handler) handleRequest(conn *websocket.Conn, req wsRequest, ticker *time.Ticker) error {
	switch req.Type {
	case "refresh":
		return h.sendState(conn)
	case "interval":
		d, err := time.ParseDuration(req.Data)
		if err != nil || d <= 0 || d > maxInterval {
			return h.sendError(conn, "interval must be a duration in (0, "+maxInterval.String()+"]")
		}
		ticker.Reset(d)
		return h.sendState(conn)
	default:
		return h.sendError(conn, "unknown request type "+strconv.Quote(req.Type))
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	interval := defaultInterval

	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}

	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}

	return interval
}

// startReader decodes client requests until the connection closes. Frames
// that are not JSON requests are dropped.
func (h *Handler) startReader(conn *websocket.Conn, requests chan<- wsRequest, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
		var req wsRequest
		if json.Unmarshal(data, &req) != nil || req.Type == "" {
			continue
		}
		select {
		case requests <- req:
		default:
			// writer is busy; a later tick carries the state anyway
		}
	}
}

// sendState writes the combined controller, monitoring and logging status.
func (h *Handler) sendState(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "state", Data: h.services.Overview()})
}

func (h *Handler) sendError(conn *websocket.Conn, msg string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "error", Error: msg})
}
