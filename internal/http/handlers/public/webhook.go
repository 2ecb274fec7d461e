package public

import (
	"errors"
	"io"
	"net/http"

	"github.com/orbisvoice-next/internal/http/response"
	"github.com/orbisvoice-next/internal/payment/stripe"
	"github.com/orbisvoice-next/internal/service"

	"github.com/gin-gonic/gin"
)

const webhookBodyLimit = 1 << 20 // 1MiB

// StripeWebhook Stripe 事件回调入口。
// 签名校验或报文解析失败应答 400；通过校验后无论业务处理成败都应答 200，
// 避免上游把内部故障当作投递失败无限重试。
// 校验之后的落库失败应答 500，让上游按投递失败重试。
func (h *Handler) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		respondError(c, response.CodeBadRequest, "read body failed", err)
		return
	}

	headers := map[string]string{
		"Stripe-Signature": c.GetHeader("Stripe-Signature"),
	}
	result, err := h.WebhookService.HandleStripeWebhook(c.Request.Context(), headers, body)
	if err != nil {
		if isWebhookRejectError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// isWebhookRejectError 判定是否为请求本身不合法（签名、报文、配置）
func isWebhookRejectError(err error) bool {
	return errors.Is(err, stripe.ErrSignatureInvalid) ||
		errors.Is(err, stripe.ErrResponseInvalid) ||
		errors.Is(err, stripe.ErrConfigInvalid) ||
		errors.Is(err, service.ErrWebhookEventInvalid)
}
