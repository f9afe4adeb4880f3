package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/NEO6667/Collaborative-Canvas/internal/hub"
	"github.com/NEO6667/Collaborative-Canvas/internal/service"
)

// Handler 负责处理 WebSocket 升级请求并把连接挂接到 Hub 和协调器。
// 房间归属不在 URL 中：客户端升级后通过 join 消息加入房间（§逻辑消息通道）。
type Handler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	coordinator *service.Coordinator
}

// NewHandler 创建 WebSocket Handler 实例。
func NewHandler(h *hub.Hub, coordinator *service.Coordinator) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}
	if coordinator == nil {
		panic("Coordinator cannot be nil for websocket Handler")
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: Implement proper origin checking for production
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub:         h,
		coordinator: coordinator,
	}
}

// HandleConnection 处理 GET /ws：升级连接、分配连接 ID、
// 注册 Unjoined 会话并启动读写 goroutine。
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写了 HTTP 错误响应，这里只记录日志。
		logrus.WithError(err).Error("WS Handler: failed to upgrade connection")
		return
	}

	connID := uuid.NewString()
	logCtx := logrus.WithField("conn_id", connID)

	if err := h.coordinator.OpenSession(connID); err != nil {
		logCtx.WithError(err).Error("WS Handler: failed to open session")
		conn.Close()
		return
	}

	client := hub.NewClient(h.hub, conn, connID)
	h.hub.Register(client)
	client.Run()
	logCtx.Info("WS Handler: connection upgraded, client pumps started")
}
