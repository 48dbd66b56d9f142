package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EthanQC/roadcast/pkg/zlog"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/in/ws"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/in"
)

// PresenceController 连接入口和在线状态查询
type PresenceController struct {
	wsServer *ws.WSServer
	presence in.PresenceQuery
}

func NewPresenceController(wsServer *ws.WSServer, presence in.PresenceQuery) *PresenceController {
	return &PresenceController{wsServer: wsServer, presence: presence}
}

// RegisterRoutes 注册路由
func (c *PresenceController) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", c.Connect)
	r.GET("/presence/:userId", c.GetPresence)
	r.GET("/stats", c.Stats)
}

// Connect WebSocket 握手
func (c *PresenceController) Connect(ctx *gin.Context) {
	c.wsServer.HandleConnection(ctx.Writer, ctx.Request)
}

// GetPresence 查询用户在线状态
func (c *PresenceController) GetPresence(ctx *gin.Context) {
	view, err := c.presence.GetPresence(ctx.Request.Context(), ctx.Param("userId"))
	if err != nil {
		if errors.Is(err, entity.ErrValidation) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": entity.ClientMessage(err, err.Error())})
			return
		}
		zlog.C(ctx.Request.Context()).Error("get presence failed", zlog.Err(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(http.StatusOK, view)
}

// Stats 本实例连接统计
func (c *PresenceController) Stats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.wsServer.GetStats())
}

// NewRouter 组装 gin 路由
func NewRouter(controller *PresenceController, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), zlog.GinLogger("/health", "/metrics", "/ws"))

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/log/level", gin.WrapF(zlog.LevelHTTPHandler()))
	router.PUT("/log/level", gin.WrapF(zlog.LevelHTTPHandler()))

	controller.RegisterRoutes(router)
	return router
}
