package gateway

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/screenfleet/server/internal/auth"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to keep an idle connection alive.
	pongWait = 60 * time.Second
	// Send pings to peer with this period.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 10 * 1024

	// Inbound frame cap per device connection. Heartbeats are minutely;
	// this is generous headroom for status bursts.
	inboundFramesPerSec = 5
	inboundBurst        = 10
)

// wsTransport adapts a websocket connection to the Transport interface.
// The mutex serializes writes; gorilla allows only one concurrent writer.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) Send(env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(env)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// SocketHandler upgrades device and operator HTTP requests to websocket
// connections and wires them into the gateway.
type SocketHandler struct {
	gateway    *Gateway
	jwtService *auth.JWTService
	upgrader   websocket.Upgrader
}

// NewSocketHandler creates the websocket endpoints handler.
func NewSocketHandler(gw *Gateway, jwtService *auth.JWTService) *SocketHandler {
	return &SocketHandler{
		gateway:    gw,
		jwtService: jwtService,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// Origin is not meaningful for device clients; identity comes
			// from the JWT.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleDevice handles GET /ws/device: authenticates the device token,
// upgrades, registers the connection, and runs the read loop.
func (h *SocketHandler) HandleDevice(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if claims.Role != auth.RoleDevice || claims.DeviceID == uuid.Nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	deviceID := claims.DeviceID

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("device %s websocket upgrade failed: %v", deviceID, err)
		return
	}

	t := &wsTransport{conn: conn}
	h.gateway.Connect(r.Context(), deviceID, t)
	defer h.gateway.Disconnect(context.Background(), deviceID, t)

	go pingLoop(conn)

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(inboundFramesPerSec, inboundBurst)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("device %s connection closed: %v", deviceID, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if !limiter.Allow() {
			log.Printf("device %s exceeded inbound frame rate, dropping frame", deviceID)
			continue
		}
		h.gateway.HandleInbound(r.Context(), deviceID, raw)
	}
}

// HandleOperator handles GET /ws/operator: authenticates the operator token,
// upgrades, and streams fleet events until the dashboard disconnects.
func (h *SocketHandler) HandleOperator(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if claims.Role != auth.RoleOperator {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("operator websocket upgrade failed: %v", err)
		return
	}

	sessionID := uuid.NewString()
	t := &wsTransport{conn: conn}
	h.gateway.ConnectOperator(sessionID, t)
	defer func() {
		h.gateway.DisconnectOperator(sessionID)
		_ = conn.Close()
	}()

	go pingLoop(conn)

	// Operators only receive; the read loop exists to process control
	// frames and notice the close.
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// authenticate extracts the bearer token from the Authorization header or,
// for browser websocket clients that cannot set headers, the token query
// parameter.
func (h *SocketHandler) authenticate(r *http.Request) (*auth.Claims, error) {
	token := ""
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = strings.TrimSpace(parts[1])
		}
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return h.jwtService.VerifyToken(token)
}

// pingLoop keeps the connection alive. WriteControl is safe to call
// concurrently with the transport's writes.
func pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}
