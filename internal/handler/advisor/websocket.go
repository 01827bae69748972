package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Frame types.
const (
	FrameText      = "text"
	FrameReply     = "reply"
	FrameError     = "error"
	FrameConnected = "connected"
)

// InboundFrame is one user turn sent over the socket.
type InboundFrame struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversationId"`
	Text           string         `json:"text"`
	History        []chat.Message `json:"history,omitempty"`
}

// OutboundFrame carries a reply or an error back to the client.
type OutboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Reply          string `json:"reply,omitempty"`
	Fallback       bool   `json:"fallback,omitempty"`
	Error          string `json:"error,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(frame OutboundFrame) error {
	frame.Timestamp = time.Now().Unix()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(frame)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接，每个文本帧对应一次回复
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, conn)

	if err := conn.send(OutboundFrame{Type: FrameConnected}); err != nil {
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("websocket read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		// 非法帧只回错误，连接保持打开
		var out OutboundFrame
		var frame InboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			out = OutboundFrame{Type: FrameError, Error: "invalid frame: " + err.Error()}
		} else {
			out = h.answer(ctx, frame)
		}

		if err := conn.send(out); err != nil {
			h.logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (h *Handler) answer(ctx context.Context, frame InboundFrame) OutboundFrame {
	switch {
	case frame.Type != "" && frame.Type != FrameText:
		return OutboundFrame{Type: FrameError, ConversationID: frame.ConversationID, Error: "unsupported frame type: " + frame.Type}
	case strings.TrimSpace(frame.Text) == "":
		return OutboundFrame{Type: FrameError, ConversationID: frame.ConversationID, Error: "text is required"}
	}

	reply := h.replier.Reply(ctx, trimHistory(frame.History), frame.Text)
	return OutboundFrame{
		Type:           FrameReply,
		ConversationID: frame.ConversationID,
		Reply:          reply.Text,
		Fallback:       reply.Fallback,
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
