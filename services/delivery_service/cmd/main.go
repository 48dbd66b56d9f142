package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/EthanQC/roadcast/pkg/zlog"
	httpAdapter "github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/in/http"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/in/ws"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/auth"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/db"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/memory"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/mq"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/push"
	redisRepo "github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/redis"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/application"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/bootstrap"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/metrics"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

func main() {
	// 加载配置
	if err := bootstrap.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := bootstrap.InitLogger("delivery-service"); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer zap.L().Sync()

	logger := zap.L()
	instanceID := bootstrap.InstanceID()
	logger.Info("delivery_service starting",
		zap.String("env", bootstrap.Env()),
		zap.String("instance", instanceID))

	// 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	zlog.RegisterMetrics(registry)
	metrics.Register(registry)

	secret := viper.GetString("auth.jwt_secret")
	if secret == "" {
		logger.Fatal("auth.jwt_secret is required")
	}

	// 初始化数据库
	database, err := bootstrap.InitDB()
	if err != nil {
		logger.Fatal("Failed to init database", zap.Error(err))
	}
	if viper.GetBool("mysql.auto_migrate") {
		if err := db.AutoMigrate(database); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// 初始化Redis
	redisClient, err := bootstrap.InitRedis()
	if err != nil {
		logger.Fatal("Failed to init redis", zap.Error(err))
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := newRelayBus(redisClient, instanceID)
	if err != nil {
		logger.Fatal("Failed to init relay bus", zap.Error(err))
	}

	pushService, err := newPushService(ctx)
	if err != nil {
		logger.Fatal("Failed to init push service", zap.Error(err))
	}

	presencePublisher := newPresencePublisher()

	// 初始化用例层
	connManager := ws.NewConnectionManager()
	presenceRegistry := application.NewPresenceRegistry(
		redisRepo.NewKVStoreRedis(redisClient, viper.GetString("redis.key_prefix")),
	)
	dispatcher := application.NewDispatcher(presenceRegistry, connManager, pushService)
	relay := application.NewRelayFanout(bus, connManager, dispatcher, instanceID)
	gateway := application.NewGateway(application.GatewayDeps{
		Registry:          presenceRegistry,
		Dispatcher:        dispatcher,
		Relay:             relay,
		ConnManager:       connManager,
		Matcher:           db.NewGeoMatcherMySQL(database),
		LocationRepo:      db.NewLocationRepositoryMySQL(database),
		ReportRepo:        db.NewReportRepositoryMySQL(database),
		MessageRepo:       db.NewMessageRepositoryMySQL(database),
		NotificationRepo:  db.NewNotificationRepositoryMySQL(database),
		PresencePublisher: presencePublisher,
	}, application.GatewayConfig{
		NearbyRadius:   viper.GetFloat64("geo.nearby_radius_meters"),
		NearbyLimit:    viper.GetInt("geo.nearby_limit"),
		AudienceRadius: viper.GetFloat64("geo.audience_radius_meters"),
		AudienceLimit:  viper.GetInt("geo.audience_limit"),
	})

	if err := relay.Start(ctx); err != nil {
		logger.Fatal("Failed to subscribe relay channels", zap.Error(err))
	}

	wsServer := ws.NewWSServer(connManager, gateway, auth.NewJWTVerifier(secret), ws.RateLimitConfig{
		Rate:  viper.GetFloat64("ws.rate_limit.rate"),
		Burst: viper.GetFloat64("ws.rate_limit.burst"),
	})

	// 初始化HTTP服务器
	if bootstrap.Env() != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpAdapter.NewRouter(httpAdapter.NewPresenceController(wsServer, presenceRegistry), registry)

	httpPort := viper.GetInt("server.http_port")
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", httpPort),
		Handler: router,
	}

	go func() {
		logger.Info("Delivery server starting", zap.Int("port", httpPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), viper.GetDuration("server.shutdown_timeout"))
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// 关闭连接会触发离线清理，给清理留一点时间
	connManager.CloseAll()
	waitDrained(shutdownCtx, connManager)

	cancel()
	if err := bus.Close(); err != nil {
		logger.Warn("Relay bus close error", zap.Error(err))
	}
	if presencePublisher != nil {
		if err := presencePublisher.Close(); err != nil {
			logger.Warn("Presence publisher close error", zap.Error(err))
		}
	}

	logger.Info("Server exited properly")
}

// newRelayBus 按 relay.driver 选择中继实现
func newRelayBus(redisClient *redis.Client, instanceID string) (out.RelayBus, error) {
	switch driver := viper.GetString("relay.driver"); driver {
	case "redis":
		return redisRepo.NewRelayBusRedis(redisClient), nil
	case "kafka":
		return mq.NewKafkaRelayBus(mq.KafkaRelayConfig{
			Brokers:     viper.GetStringSlice("kafka.brokers"),
			TopicPrefix: viper.GetString("kafka.topic_prefix"),
			GroupPrefix: viper.GetString("kafka.group_prefix"),
			InstanceID:  instanceID,
		})
	case "memory":
		zap.L().Warn("Using in-process relay, cross-instance delivery disabled")
		return memory.NewRelayBus(), nil
	default:
		return nil, fmt.Errorf("unknown relay driver %q", driver)
	}
}

// newPushService 未配置 FCM 凭证时退回日志推送
func newPushService(ctx context.Context) (out.PushService, error) {
	if viper.GetString("push.driver") != "fcm" {
		return push.NewLogPushService(), nil
	}
	return push.NewFCMPushService(ctx, viper.GetString("push.fcm_credentials_file"))
}

func newPresencePublisher() out.PresenceEventPublisher {
	if !viper.GetBool("kafka.presence_events") {
		return nil
	}
	w := mq.NewPresenceWriter(viper.GetStringSlice("kafka.brokers"), viper.GetString("kafka.presence_topic"))
	return mq.NewPresencePublisherKafka(w)
}

func waitDrained(ctx context.Context, connManager *ws.ConnectionManager) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for connManager.Count() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
