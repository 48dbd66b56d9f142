package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/db"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/application"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/bootstrap"
)

// 定时删除 inaccuracies 超过阈值的路况上报
func main() {
	if err := bootstrap.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := bootstrap.InitLogger("report-sweeper"); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer zap.L().Sync()
	logger := zap.L()

	database, err := bootstrap.InitDB()
	if err != nil {
		logger.Fatal("Failed to init database", zap.Error(err))
	}

	config := application.DefaultReportSweeperConfig()
	config.Interval = viper.GetDuration("sweeper.interval")
	config.Threshold = viper.GetInt("sweeper.threshold")

	sweeper := application.NewReportSweeper(db.NewReportRepositoryMySQL(database), config)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start report sweeper", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sweeper.Stop()
	logger.Info("Report sweeper exited")
}
