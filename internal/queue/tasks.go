package queue

import (
	"encoding/json"

	"github.com/orbisvoice-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskRewardHoldRelease 冻结期释放任务
	TaskRewardHoldRelease = constants.TaskRewardHoldRelease
	// TaskWebhookReplay Webhook 失败事件重放任务
	TaskWebhookReplay = constants.TaskWebhookReplay
	// TaskPayoutSettle 打款结算确认任务
	TaskPayoutSettle = constants.TaskPayoutSettle
)

// RewardHoldReleasePayload 冻结期释放任务载荷
type RewardHoldReleasePayload struct {
	ScheduledAt int64 `json:"scheduled_at"`
}

// WebhookReplayPayload Webhook 重放任务载荷
type WebhookReplayPayload struct {
	EventID string `json:"event_id"`
}

// PayoutSettlePayload 打款结算任务载荷
type PayoutSettlePayload struct {
	PayoutID uint `json:"payout_id"`
}

// NewRewardHoldReleaseTask 创建冻结期释放任务
func NewRewardHoldReleaseTask(payload RewardHoldReleasePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRewardHoldRelease, body), nil
}

// NewWebhookReplayTask 创建 Webhook 重放任务
func NewWebhookReplayTask(payload WebhookReplayPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookReplay, body), nil
}

// NewPayoutSettleTask 创建打款结算任务
func NewPayoutSettleTask(payload PayoutSettlePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutSettle, body), nil
}
