package stripe

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseAndValidateConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{
		"secret_key":     " sk_test_123 ",
		"webhook_secret": " whsec_123 ",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if cfg.SecretKey != "sk_test_123" {
		t.Fatalf("unexpected secret key: %s", cfg.SecretKey)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", cfg.APIBaseURL)
	}
	if cfg.WebhookToleranceSeconds != defaultWebhookToleranceS {
		t.Fatalf("unexpected default tolerance: %d", cfg.WebhookToleranceSeconds)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
}

func TestVerifyAndParseWebhookInvoicePaid(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	payload := map[string]interface{}{
		"id":   "evt_test_1",
		"type": "invoice.paid",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":         "invoice",
				"id":             "in_test_123",
				"customer":       "cus_test_9",
				"subscription":   "sub_test_9",
				"billing_reason": "subscription_create",
				"currency":       "usd",
				"amount_paid":    49700,
				"created":        now.Unix(),
			},
		},
	}
	body, _ := json.Marshal(payload)
	sig := computeSignature(cfg.WebhookSecret, now.Unix(), body)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=" + sig,
	}

	event, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if event.Type != "invoice.paid" {
		t.Fatalf("unexpected event type: %s", event.Type)
	}
	if event.Invoice == nil {
		t.Fatalf("expected invoice object, got nil")
	}
	if event.Invoice.ID != "in_test_123" {
		t.Fatalf("unexpected invoice id: %s", event.Invoice.ID)
	}
	if event.Invoice.CustomerID != "cus_test_9" {
		t.Fatalf("unexpected customer id: %s", event.Invoice.CustomerID)
	}
	if event.Invoice.BillingReason != "subscription_create" {
		t.Fatalf("unexpected billing reason: %s", event.Invoice.BillingReason)
	}
	if event.Invoice.AmountPaid.StringFixed(2) != "497.00" {
		t.Fatalf("unexpected amount paid: %s", event.Invoice.AmountPaid.String())
	}
}

func TestVerifyAndParseWebhookInvalidSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	body := []byte(`{"id":"evt_test_2","type":"invoice.paid","data":{"object":{"object":"invoice","id":"in_x"}}}`)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=deadbeef",
	}

	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); err == nil {
		t.Fatalf("expected signature verification error")
	}
}

func TestVerifyAndParseWebhookTimestampOutsideTolerance(t *testing.T) {
	sent := time.Unix(1760000000, 0)
	now := sent.Add(10 * time.Minute)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	body := []byte(`{"id":"evt_test_3","type":"invoice.paid","data":{"object":{"object":"invoice","id":"in_x"}}}`)
	sig := computeSignature(cfg.WebhookSecret, sent.Unix(), body)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=" + sig,
	}

	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); err == nil {
		t.Fatalf("expected tolerance error")
	}
}

func TestVerifyAndParseWebhookMissingSignatureHeader(t *testing.T) {
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	body := []byte(`{"id":"evt_test_4","type":"invoice.paid","data":{"object":{"object":"invoice","id":"in_x"}}}`)

	if _, err := VerifyAndParseWebhook(cfg, map[string]string{}, body, time.Now()); err == nil {
		t.Fatalf("expected missing signature error")
	}
}

func TestParseWebhookEventChargeRefunded(t *testing.T) {
	body := []byte(`{
		"id": "evt_refund_1",
		"type": "charge.refunded",
		"data": {
			"object": {
				"object": "charge",
				"id": "ch_test_1",
				"invoice": "in_test_123",
				"payment_intent": "pi_test_9",
				"currency": "usd",
				"amount_refunded": 9940,
				"refunded": true
			}
		}
	}`)

	event, err := ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("parse webhook event failed: %v", err)
	}
	if event.Charge == nil {
		t.Fatalf("expected charge object, got nil")
	}
	if event.Charge.InvoiceID != "in_test_123" {
		t.Fatalf("unexpected invoice id: %s", event.Charge.InvoiceID)
	}
	if !event.Charge.Refunded {
		t.Fatalf("expected refunded flag set")
	}
	if event.Charge.AmountRefunded.StringFixed(2) != "99.40" {
		t.Fatalf("unexpected refunded amount: %s", event.Charge.AmountRefunded.String())
	}
}

func TestParseWebhookEventAccountUpdated(t *testing.T) {
	body := []byte(`{
		"id": "evt_acct_1",
		"type": "account.updated",
		"data": {
			"object": {
				"object": "account",
				"id": "acct_test_1",
				"charges_enabled": true,
				"payouts_enabled": true,
				"details_submitted": true
			}
		}
	}`)

	event, err := ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("parse webhook event failed: %v", err)
	}
	if event.Account == nil {
		t.Fatalf("expected account object, got nil")
	}
	if !event.Account.PayoutsEnabled || !event.Account.ChargesEnabled {
		t.Fatalf("expected enabled account flags")
	}
}
