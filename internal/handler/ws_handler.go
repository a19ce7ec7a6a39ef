package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/calderhq/parley/internal/config"
	"github.com/calderhq/parley/internal/domain"
	"github.com/calderhq/parley/internal/hub"
	"github.com/calderhq/parley/internal/service"
	"github.com/calderhq/parley/pkg/log"
)

// Identity headers set by the upstream auth gateway. The core attaches
// them to the connection untouched; absent headers mean anonymous.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"
	HeaderAvatar   = "X-Avatar"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", func(c *gin.Context) {
		h.HandleWebSocket(c.Writer, c.Request)
	})
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := log.L()
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, identityFrom(r), h.wsCfg)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleEvent, h.handleClose)
}

// handleEvent is the single dispatch point for inbound events. The
// context is deliberately detached from the transport so an in-flight
// persist still completes if the sender drops mid-send.
func (h *WSHandler) handleEvent(client *hub.Client, raw []byte) {
	var base domain.BaseEvent
	if err := json.Unmarshal(raw, &base); err != nil {
		client.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "invalid event format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.EventJoinRoom:
		var ev domain.JoinRoomEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			client.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "invalid join_room event"))
			return
		}
		if err := h.service.HandleJoin(ctx, client, ev.Room, ev.Username); err != nil {
			logger := log.L()
			logger.Warn().Err(err).Str("client_id", client.ID).Msg("join_room failed")
		}

	case domain.EventSendMessage:
		var ev domain.SendMessageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			client.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "invalid send_message event"))
			return
		}
		if err := h.service.HandleSend(ctx, client, ev.Author, ev.Message, ev.Time); err != nil {
			logger := log.L()
			logger.Warn().Err(err).Str("client_id", client.ID).Msg("send_message failed")
		}

	case domain.EventTyping:
		var ev domain.TypingEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return
		}
		h.service.HandleTyping(ctx, client, ev.Username)

	case domain.EventStopTyping:
		var ev domain.TypingEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return
		}
		h.service.HandleStopTyping(ctx, client, ev.Username)

	case domain.EventLeaveRoom:
		if err := h.service.HandleLeave(ctx, client); err != nil {
			logger := log.L()
			logger.Warn().Err(err).Str("client_id", client.ID).Msg("leave_room failed")
		}

	default:
		client.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "unknown event type"))
	}
}

func (h *WSHandler) handleClose(client *hub.Client) {
	if err := h.service.HandleDisconnect(context.Background(), client); err != nil {
		logger := log.L()
		logger.Warn().Err(err).Str("client_id", client.ID).Msg("disconnect handling failed")
	}
}

func identityFrom(r *http.Request) *domain.Identity {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		return nil
	}
	return &domain.Identity{
		UserID:   userID,
		Username: r.Header.Get(HeaderUsername),
		Avatar:   r.Header.Get(HeaderAvatar),
	}
}
