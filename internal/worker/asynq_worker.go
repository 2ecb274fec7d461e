package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/orbisvoice-next/internal/logger"
	"github.com/orbisvoice-next/internal/provider"
	"github.com/orbisvoice-next/internal/queue"
	"github.com/orbisvoice-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskRewardHoldRelease, c.handleRewardHoldRelease)
	mux.HandleFunc(queue.TaskWebhookReplay, c.handleWebhookReplay)
	mux.HandleFunc(queue.TaskPayoutSettle, c.handlePayoutSettle)
}

// handleRewardHoldRelease 冻结期到点释放。任务按单笔流水的 hold_ends_at 投递，
// 执行时做一次全量扫描，顺带补齐此前释放失败的流水。
func (c *Consumer) handleRewardHoldRelease(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_hold_release_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.RewardHoldReleasePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_hold_release_unmarshal_failed", "error", err)
		return err
	}
	if c.CommissionService == nil {
		logger.Warnw("worker_hold_release_skip_service_nil")
		return nil
	}
	released, err := c.CommissionService.ClearPendingHolds()
	if err != nil {
		logger.Warnw("worker_hold_release_failed", "error", err)
		return err
	}
	if released > 0 {
		logger.Infow("worker_hold_release_done", "released", released)
	}
	return nil
}

// handleWebhookReplay 重放一条失败的 Webhook 事件
func (c *Consumer) handleWebhookReplay(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_webhook_replay_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.WebhookReplayPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_webhook_replay_unmarshal_failed", "error", err)
		return err
	}
	if payload.EventID == "" {
		logger.Debugw("worker_webhook_replay_skip_invalid_payload")
		return nil
	}
	if c.WebhookService == nil {
		logger.Warnw("worker_webhook_replay_skip_service_nil", "event_id", payload.EventID)
		return nil
	}
	if err := c.WebhookService.ReplayEvent(ctx, payload.EventID); err != nil {
		if errors.Is(err, service.ErrWebhookEventInvalid) {
			logger.Debugw("worker_webhook_replay_skip_event_not_found", "event_id", payload.EventID)
			return nil
		}
		logger.Warnw("worker_webhook_replay_failed", "event_id", payload.EventID, "error", err)
		return err
	}
	return nil
}

// handlePayoutSettle 补偿打款结算：对滞留在途的打款单重新按归属伙伴发起处理
func (c *Consumer) handlePayoutSettle(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payout_settle_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PayoutSettlePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payout_settle_unmarshal_failed", "error", err)
		return err
	}
	if payload.PayoutID == 0 {
		logger.Debugw("worker_payout_settle_skip_invalid_payload")
		return nil
	}
	if c.PayoutService == nil || c.PayoutRepo == nil {
		logger.Warnw("worker_payout_settle_skip_service_nil", "payout_id", payload.PayoutID)
		return nil
	}
	payout, err := c.PayoutRepo.GetByID(payload.PayoutID)
	if err != nil {
		logger.Warnw("worker_payout_settle_fetch_failed", "payout_id", payload.PayoutID, "error", err)
		return err
	}
	if payout == nil {
		logger.Debugw("worker_payout_settle_skip_not_found", "payout_id", payload.PayoutID)
		return nil
	}
	if err := c.PayoutService.ResolveInTransfer(ctx, payout.ID); err != nil {
		logger.Warnw("worker_payout_settle_failed", "payout_id", payload.PayoutID, "error", err)
		return err
	}
	return nil
}
