// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	apperrors "github.com/MedVisage/IVAStudioMCP/internal/errors"
	"github.com/MedVisage/IVAStudioMCP/internal/services"
	"github.com/MedVisage/IVAStudioMCP/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsTurnTimeout  = 60 * time.Second
)

// WebSocketHandler 处理构建器会话的WebSocket连接
type WebSocketHandler struct {
	builderService *services.BuilderService
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(builderService *services.BuilderService) *WebSocketHandler {
	return &WebSocketHandler{builderService: builderService}
}

// wsInbound 客户端发来的消息
type wsInbound struct {
	Type    string `json:"type"`    // "message" 或 "ping"
	Message string `json:"message"` // 用户文本
}

// wsOutbound 发往客户端的消息
type wsOutbound struct {
	Type      string      `json:"type"` // "state" / "error" / "pong"
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// BuilderWebSocket 把一个构建器会话升级为WebSocket对话通道
// 每收到一条用户消息就执行完整回合，并推送回最新状态快照
func (h *WebSocketHandler) BuilderWebSocket(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := h.builderService.GetSession(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Error("WebSocket upgrade failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	// 心跳
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// 连接建立后先推送一次当前状态
	h.writeOutbound(conn, wsOutbound{
		Type:      "state",
		Data:      session.State(),
		Timestamp: time.Now(),
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.GetLogger().Warn("WebSocket read error", map[string]interface{}{
					"session_id": sessionID,
					"error":      err.Error(),
				})
			}
			return
		}

		var inbound wsInbound
		if err := json.Unmarshal(raw, &inbound); err != nil {
			h.writeOutbound(conn, wsOutbound{
				Type:      "error",
				Error:     "消息格式错误",
				Timestamp: time.Now(),
			})
			continue
		}

		switch inbound.Type {
		case "ping":
			h.writeOutbound(conn, wsOutbound{Type: "pong", Timestamp: time.Now()})

		case "message", "":
			if inbound.Message == "" {
				h.writeOutbound(conn, wsOutbound{
					Type:      "error",
					Error:     "缺少message字段",
					Timestamp: time.Now(),
				})
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), wsTurnTimeout)
			state, err := h.builderService.ProcessMessage(ctx, sessionID, inbound.Message)
			cancel()

			if err != nil {
				// 会话被关闭后结束连接，其他错误保持通道存活
				if apperrors.IsNotFoundError(err) {
					h.writeOutbound(conn, wsOutbound{
						Type:      "error",
						Error:     "会话不存在",
						Timestamp: time.Now(),
					})
					return
				}
				h.writeOutbound(conn, wsOutbound{
					Type:      "error",
					Error:     "对话回合处理失败",
					Timestamp: time.Now(),
				})
				continue
			}

			h.writeOutbound(conn, wsOutbound{
				Type:      "state",
				Data:      state,
				Timestamp: time.Now(),
			})

		default:
			h.writeOutbound(conn, wsOutbound{
				Type:      "error",
				Error:     "未知的消息类型: " + inbound.Type,
				Timestamp: time.Now(),
			})
		}
	}
}

// writeOutbound 带写超时的JSON发送
func (h *WebSocketHandler) writeOutbound(conn *websocket.Conn, msg wsOutbound) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		utils.GetLogger().Debug("WebSocket write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
