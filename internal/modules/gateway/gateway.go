package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyspace/core/internal/models"
	pkgredis "github.com/studyspace/core/internal/pkg/redis"
)

const (
	namespaceWS   = "/ws"
	redisChanUser = "ss:gateway:user"

	EventConnect        = "GATEWAY_CONNECT"
	EventAuthFailed     = "AUTH_FAILED"
	EventDocumentStatus = "DOCUMENT_STATUS"
)

// Message is the envelope used by hub broadcasts and Redis fan-out. UserID
// routes the event to one user's sockets; empty goes to everyone.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	UserID  string      `json:"user_id,omitempty"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type clientMeta struct {
	sid    string
	userID string
}

// TokenValidator resolves a raw token to the authenticated user id.
type TokenValidator func(token string) (userID string, ok bool)

// Hub manages socket.io connections keyed by user and fans events out
// across instances through Redis.
type Hub struct {
	mu sync.RWMutex

	sidUser  map[string]string
	userSids map[string]map[string]*socketio.Socket

	broadcast  chan Message
	register   chan clientMeta
	unregister chan clientMeta

	rc        *pkgredis.Client
	logger    *zap.Logger
	sio       *socketio.Server
	validator TokenValidator
}

func NewHub(rc *pkgredis.Client, logger *zap.Logger, validator TokenValidator) *Hub {
	sio := socketio.NewServer(nil, nil)
	h := &Hub{
		sidUser:    make(map[string]string),
		userSids:   make(map[string]map[string]*socketio.Socket),
		broadcast:  make(chan Message, 256),
		register:   make(chan clientMeta, 256),
		unregister: make(chan clientMeta, 256),
		rc:         rc,
		logger:     logger.Named("gateway"),
		sio:        sio,
		validator:  validator,
	}
	h.registerNamespace()
	return h
}

func (h *Hub) registerNamespace() {
	ns := h.sio.Of(namespaceWS, nil)
	_ = ns.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		token := normalizeToken(extractToken(client))
		userID := ""
		if token != "" && h.validator != nil {
			userID, ok = h.validator(token)
			if !ok {
				userID = ""
			}
		}
		if userID == "" {
			_ = client.Emit("message", gatewayPayload{Type: EventAuthFailed, Data: "auth failed"})
			client.Disconnect(true)
			return
		}

		sid := string(client.Id())
		h.attach(sid, userID, client)
		h.register <- clientMeta{sid: sid, userID: userID}
		_ = client.Emit("message", gatewayPayload{Type: EventConnect, Data: "WebSocket connected"})

		_ = client.On("disconnect", func(_ ...any) {
			h.unregister <- clientMeta{sid: sid, userID: userID}
		})
	})
}

func (h *Hub) attach(sid, userID string, client *socketio.Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sidUser[sid] = userID
	if h.userSids[userID] == nil {
		h.userSids[userID] = make(map[string]*socketio.Socket)
	}
	h.userSids[userID][sid] = client
}

func (h *Hub) detach(sid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID, ok := h.sidUser[sid]
	if !ok {
		return
	}
	delete(h.sidUser, sid)
	if sids := h.userSids[userID]; sids != nil {
		delete(sids, sid)
		if len(sids) == 0 {
			delete(h.userSids, userID)
		}
	}
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	return firstValueFromMultiMap(handshake.Headers, "authorization")
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		if v := strings.TrimSpace(list[0]); v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

// Run starts the hub loop and the Redis subscriber for cluster fan-out.
func (h *Hub) Run(ctx context.Context) {
	if h.rc != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.sio.Close(nil)
			return

		case <-h.register:
			// attach happened on the socket goroutine; nothing else to do

		case c := <-h.unregister:
			h.detach(c.sid)

		case msg := <-h.broadcast:
			h.deliver(msg)

			if h.rc != nil {
				data, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				if err := h.rc.Publish(ctx, redisChanUser, string(data)); err != nil {
					h.logger.Warn("gateway publish failed", zap.Error(err))
				}
			}
		}
	}
}

func (h *Hub) deliver(msg Message) {
	payload := gatewayPayload{Type: msg.Event, Data: msg.Payload}
	if msg.UserID == "" {
		h.sio.Of(namespaceWS, nil).Emit("message", payload)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.userSids[msg.UserID] {
		_ = client.Emit("message", payload)
	}
}

// subscribeRedis replays broadcasts published by other server instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, redisChanUser)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				continue
			}
			h.deliver(msg)
		}
	}
}

// BroadcastUser sends an event to every socket of one user.
func (h *Hub) BroadcastUser(userID, event string, payload interface{}) {
	h.broadcast <- Message{Event: event, Payload: payload, UserID: userID}
}

// ClientCount returns connected socket count, optionally for one user.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if userID == "" {
		return len(h.sidUser)
	}
	return len(h.userSids[userID])
}

// Handler returns the socket.io HTTP handler.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}

// RegisterRoutes mounts socket.io and a stats endpoint.
func RegisterRoutes(rg *gin.RouterGroup, hub *Hub) {
	handler := gin.WrapH(hub.Handler())
	rg.Any("/socket.io", handler)
	rg.Any("/socket.io/*any", handler)

	rg.GET("/gateway/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"total": hub.ClientCount("")})
	})
}

// Notifier pushes ingestion status transitions to the owning user's
// sockets. It satisfies the pipeline's notifier hook.
type Notifier struct {
	db  *gorm.DB
	hub *Hub
	log *zap.Logger
}

func NewNotifier(db *gorm.DB, hub *Hub, log *zap.Logger) *Notifier {
	return &Notifier{db: db, hub: hub, log: log.Named("gateway.notifier")}
}

func (n *Notifier) NotifyDocumentStatus(projectID, documentID string, status models.DocumentStatus) {
	var userID string
	err := n.db.Model(&models.ProjectModel{}).
		Where("id = ?", projectID).
		Pluck("user_id", &userID).Error
	if err != nil || userID == "" {
		n.log.Warn("resolve project owner",
			zap.String("project_id", projectID), zap.Error(err))
		return
	}
	n.hub.BroadcastUser(userID, EventDocumentStatus, gin.H{
		"project_id":  projectID,
		"document_id": documentID,
		"status":      string(status),
	})
}
