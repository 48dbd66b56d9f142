package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/EthanQC/roadcast/pkg/zlog"
)

var configPaths = []string{"./configs", "../configs", "../../configs"}

// Env 当前环境，默认 dev
func Env() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
		_ = os.Setenv("APP_ENV", env)
	}
	return env
}

// LoadConfig 读取 configs/config.<env>.yaml 并设置默认值
func LoadConfig() error {
	env := Env()

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	viper.SetConfigType("yaml")
	for _, p := range configPaths {
		viper.AddConfigPath(p)
	}
	setDefaults()

	return viper.ReadInConfig()
}

func setDefaults() {
	viper.SetDefault("server.http_port", 8084)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("redis.pool_size", 20)
	viper.SetDefault("redis.key_prefix", "")

	viper.SetDefault("mysql.max_idle_conns", 10)
	viper.SetDefault("mysql.max_open_conns", 50)
	viper.SetDefault("mysql.auto_migrate", false)

	viper.SetDefault("relay.driver", "redis")
	viper.SetDefault("kafka.topic_prefix", "roadcast.relay.")
	viper.SetDefault("kafka.group_prefix", "roadcast-relay")
	viper.SetDefault("kafka.presence_topic", "roadcast.presence.changed")
	viper.SetDefault("kafka.presence_events", false)

	viper.SetDefault("geo.nearby_radius_meters", 5000)
	viper.SetDefault("geo.nearby_limit", 10)
	viper.SetDefault("geo.audience_radius_meters", 5000)
	viper.SetDefault("geo.audience_limit", 0)

	viper.SetDefault("ws.rate_limit.rate", 20)
	viper.SetDefault("ws.rate_limit.burst", 40)

	viper.SetDefault("push.driver", "log")

	viper.SetDefault("sweeper.interval", 30*time.Minute)
	viper.SetDefault("sweeper.threshold", 2)
}

// InitLogger 从同一个配置文件的 log 段初始化 zlog
func InitLogger(service string) error {
	path := viper.ConfigFileUsed()
	if path == "" {
		for _, p := range configPaths {
			candidate := filepath.Join(p, fmt.Sprintf("config.%s.yaml", Env()))
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	logCfg, err := zlog.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("加载日志配置失败: %w", err)
	}
	logCfg.Service = service
	zlog.MustInitGlobal(*logCfg)
	return nil
}

func InitDB() (*gorm.DB, error) {
	dsn := viper.GetString("mysql.dsn")

	database, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(viper.GetInt("mysql.max_idle_conns"))
	sqlDB.SetMaxOpenConns(viper.GetInt("mysql.max_open_conns"))
	sqlDB.SetConnMaxLifetime(time.Hour)

	return database, nil
}

func InitRedis() (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
		PoolSize: viper.GetInt("redis.pool_size"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	zap.L().Info("Redis connected", zap.String("addr", viper.GetString("redis.addr")))
	return client, nil
}

// InstanceID 本实例标识，优先使用 server.advertise_addr
func InstanceID() string {
	if addr := viper.GetString("server.advertise_addr"); addr != "" {
		return addr
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
