package ws

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/metrics"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/in"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// WSServer WebSocket服务器，握手时完成认证
type WSServer struct {
	connManager *ConnectionManager
	gateway     in.GatewayUseCase
	verifier    out.TokenVerifier
	rateLimit   RateLimitConfig
	upgrader    websocket.Upgrader
}

func NewWSServer(
	connManager *ConnectionManager,
	gateway in.GatewayUseCase,
	verifier out.TokenVerifier,
	rateLimit RateLimitConfig,
) *WSServer {
	return &WSServer{
		connManager: connManager,
		gateway:     gateway,
		verifier:    verifier,
		rateLimit:   rateLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// extractToken 优先 Authorization: Bearer，其次 token 查询参数
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return r.URL.Query().Get("token")
}

// HandleConnection 认证失败时返回 401，不会升级连接
func (s *WSServer) HandleConnection(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Verify(extractToken(r))
	if err != nil {
		reason := entity.AuthReason(err)
		metrics.HandshakeRejected.WithLabelValues(reason).Inc()
		zap.L().Info("WebSocket handshake rejected",
			zap.String("reason", reason),
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	wsConn := NewWSConnection(conn, entity.NewID(), identity.UserID, s.gateway, s.connManager, s.rateLimit.newBucket())
	s.connManager.Register(wsConn)
	wsConn.Start()
}

// GetStats 获取服务器统计
func (s *WSServer) GetStats() map[string]int64 {
	return s.connManager.GetStats()
}
