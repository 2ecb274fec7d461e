package worker

import (
	"context"
	"errors"
	"time"

	"github.com/orbisvoice-next/internal/config"
	"github.com/orbisvoice-next/internal/logger"
	"github.com/orbisvoice-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	holdReleaseSweepInterval = time.Minute
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.CommissionService != nil {
		go s.runHoldReleaseSweepLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runHoldReleaseSweepLoop 周期扫描到期的冻结流水。
// 定时投递的释放任务可能因队列故障丢失，这里兜底保证最终释放。
func (s *Service) runHoldReleaseSweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.CommissionService == nil {
		return
	}
	runOnce := func() {
		released, err := s.consumer.CommissionService.ClearPendingHolds()
		if err != nil {
			logger.Warnw("worker_hold_release_sweep_failed", "error", err)
			return
		}
		if released > 0 {
			logger.Infow("worker_hold_release_sweep_done", "released", released)
		}
	}
	runOnce()

	ticker := time.NewTicker(holdReleaseSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
