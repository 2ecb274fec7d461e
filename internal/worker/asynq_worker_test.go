package worker

import (
	"context"
	"testing"

	"github.com/orbisvoice-next/internal/provider"
	"github.com/orbisvoice-next/internal/queue"

	"github.com/hibiken/asynq"
)

func newTestConsumer() *Consumer {
	return NewConsumer(&provider.Container{})
}

func TestHandleWebhookReplayInvalidPayload(t *testing.T) {
	c := newTestConsumer()
	task := asynq.NewTask(queue.TaskWebhookReplay, []byte("{not-json"))
	if err := c.handleWebhookReplay(context.Background(), task); err == nil {
		t.Fatalf("expected unmarshal error for invalid payload")
	}
}

func TestHandleWebhookReplayEmptyEventID(t *testing.T) {
	c := newTestConsumer()
	task := asynq.NewTask(queue.TaskWebhookReplay, []byte(`{"event_id":""}`))
	if err := c.handleWebhookReplay(context.Background(), task); err != nil {
		t.Fatalf("expected nil for empty event id, got %v", err)
	}
}

func TestHandlePayoutSettleZeroID(t *testing.T) {
	c := newTestConsumer()
	task := asynq.NewTask(queue.TaskPayoutSettle, []byte(`{"payout_id":0}`))
	if err := c.handlePayoutSettle(context.Background(), task); err != nil {
		t.Fatalf("expected nil for zero payout id, got %v", err)
	}
}

func TestHandleRewardHoldReleaseServiceMissing(t *testing.T) {
	c := newTestConsumer()
	task := asynq.NewTask(queue.TaskRewardHoldRelease, []byte(`{"scheduled_at":1}`))
	if err := c.handleRewardHoldRelease(context.Background(), task); err != nil {
		t.Fatalf("expected nil when commission service missing, got %v", err)
	}
}

func TestHandlersNilTask(t *testing.T) {
	c := newTestConsumer()
	if err := c.handleWebhookReplay(context.Background(), nil); err != nil {
		t.Fatalf("nil task should be skipped, got %v", err)
	}
	if err := c.handlePayoutSettle(context.Background(), nil); err != nil {
		t.Fatalf("nil task should be skipped, got %v", err)
	}
	if err := c.handleRewardHoldRelease(context.Background(), nil); err != nil {
		t.Fatalf("nil task should be skipped, got %v", err)
	}
}
