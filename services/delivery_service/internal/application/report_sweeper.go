package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/metrics"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// ReportSweeperConfig 清理配置
type ReportSweeperConfig struct {
	Interval       time.Duration
	Threshold      int // inaccuracies 大于该值的上报会被删除
	Timeout        time.Duration
	RunImmediately bool
}

func DefaultReportSweeperConfig() ReportSweeperConfig {
	return ReportSweeperConfig{
		Interval:       30 * time.Minute,
		Threshold:      2,
		Timeout:        time.Minute,
		RunImmediately: true,
	}
}

// ReportSweeper 定时删除被多次标记为不准确的路况
type ReportSweeper struct {
	config     ReportSweeperConfig
	reportRepo out.ReportRepository
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

func NewReportSweeper(reportRepo out.ReportRepository, config ReportSweeperConfig) *ReportSweeper {
	return &ReportSweeper{
		config:     config,
		reportRepo: reportRepo,
	}
}

// Start 启动
func (s *ReportSweeper) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("report sweeper already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	zap.L().Info("Report sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("threshold", s.config.Threshold))
	return nil
}

// Stop 停止并等待当前一轮结束
func (s *ReportSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	zap.L().Info("Report sweeper stopped")
}

func (s *ReportSweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *ReportSweeper) loop() {
	defer s.wg.Done()

	if s.config.RunImmediately {
		s.sweep()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *ReportSweeper) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.Timeout)
	defer cancel()

	if _, err := s.SweepOnce(ctx); err != nil {
		zap.L().Warn("Sweep inaccurate reports failed", zap.Error(err))
	}
}

// SweepOnce 执行一轮清理，返回删除条数
func (s *ReportSweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.reportRepo.DeleteInaccurate(ctx, s.config.Threshold)
	if err != nil {
		return 0, fmt.Errorf("delete inaccurate reports: %w", err)
	}
	if n > 0 {
		metrics.ReportsSwept.Add(float64(n))
		zap.L().Info("Inaccurate reports deleted", zap.Int64("count", n))
	}
	return n, nil
}
