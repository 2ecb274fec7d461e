package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrSignatureInvalid = errors.New("stripe signature invalid")
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// Config Stripe 渠道配置。
type Config struct {
	SecretKey               string `json:"secret_key"`
	WebhookSecret           string `json:"webhook_secret"`
	APIBaseURL              string `json:"api_base_url"`
	WebhookToleranceSeconds int    `json:"webhook_tolerance_seconds"`
	LifetimePriceID         string `json:"lifetime_price_id"`
}

// Event 校验解析后的 Stripe 事件（按 object 类型展开）。
type Event struct {
	ID           string
	Type         string
	Invoice      *Invoice
	Session      *CheckoutSession
	Charge       *Charge
	Subscription *Subscription
	Account      *Account
	Raw          map[string]interface{}
}

// Invoice 账单事件对象。
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	BillingReason  string
	AmountPaid     decimal.Decimal
	Currency       string
	PaidAt         *time.Time
}

// CheckoutSession 买断结账事件对象。
type CheckoutSession struct {
	ID                string
	CustomerID        string
	Mode              string
	PaymentStatus     string
	AmountTotal       decimal.Decimal
	Currency          string
	ClientReferenceID string
	PaymentIntentID   string
	Tier              string
}

// Charge 扣款事件对象（退款事件的载体）。
type Charge struct {
	ID              string
	InvoiceID       string
	PaymentIntentID string
	AmountRefunded  decimal.Decimal
	Currency        string
	Refunded        bool
}

// Subscription 订阅事件对象。
type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	PriceID    string
	Tier       string
}

// Account Connect 账户事件对象。
type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// TransferInput 创建 Connect 划款输入。
type TransferInput struct {
	Amount         decimal.Decimal
	Currency       string
	Destination    string
	Description    string
	IdempotencyKey string
}

// TransferResult 创建 Connect 划款返回。
type TransferResult struct {
	TransferID string
	Raw        map[string]interface{}
}

// SubscriptionInput 创建订阅输入。
type SubscriptionInput struct {
	CustomerID string
	PriceID    string
	TrialDays  int
	Metadata   map[string]string
}

// SubscriptionResult 创建订阅返回。
type SubscriptionResult struct {
	SubscriptionID string
	Status         string
	Raw            map[string]interface{}
}

// AccountResult Connect 账户返回。
type AccountResult struct {
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	Raw              map[string]interface{}
}

// ParseConfig 解析配置。
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.Normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// Normalize 归一化配置。
func (c *Config) Normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
}

// VerifyAndParseWebhook 校验签名并解析 Stripe webhook。
func VerifyAndParseWebhook(cfg *Config, headers map[string]string, body []byte, now time.Time) (*Event, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}

	signatureHeader := getHeaderValue(headers, "Stripe-Signature")
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("%w: Stripe-Signature is required", ErrSignatureInvalid)
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookToleranceSeconds > 0 {
		delta := math.Abs(float64(now.Unix() - timestamp))
		if delta > float64(cfg.WebhookToleranceSeconds) {
			return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	}

	expected := computeSignature(cfg.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
	}

	return ParseWebhookEvent(body)
}

// ParseWebhookEvent 仅解析事件体，不校验签名（降级模式）。
func ParseWebhookEvent(body []byte) (*Event, error) {
	eventRaw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	eventType := strings.TrimSpace(readString(eventRaw, "type"))
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrResponseInvalid)
	}
	dataRaw, ok := eventRaw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing data object", ErrResponseInvalid)
	}
	objectRaw, ok := dataRaw["object"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing event object", ErrResponseInvalid)
	}

	event := &Event{
		ID:   strings.TrimSpace(readString(eventRaw, "id")),
		Type: eventType,
		Raw:  eventRaw,
	}
	fillEventObject(event, objectRaw)
	return event, nil
}

// CreateTransfer 向 Connect 账户划款。
func CreateTransfer(ctx context.Context, cfg *Config, input TransferInput) (*TransferResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrConfigInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}
	minorAmount, err := toMinorAmount(input.Amount, currency)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minorAmount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("destination", destination)
	if desc := strings.TrimSpace(input.Description); desc != "" {
		form.Set("description", desc)
	}

	headers := map[string]string{}
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		headers["Idempotency-Key"] = key
	}

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/transfers", form, headers)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create transfer status %d", ErrResponseInvalid, statusCode)
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &TransferResult{Raw: raw}
	result.TransferID = strings.TrimSpace(readString(raw, "id"))
	if result.TransferID == "" {
		return nil, fmt.Errorf("%w: missing transfer id", ErrResponseInvalid)
	}
	return result, nil
}

// CreateSubscription 为客户创建订阅（买断用户的后续订阅迁移）。
func CreateSubscription(ctx context.Context, cfg *Config, input SubscriptionInput) (*SubscriptionResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	customerID := strings.TrimSpace(input.CustomerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer is required", ErrConfigInvalid)
	}
	priceID := strings.TrimSpace(input.PriceID)
	if priceID == "" {
		return nil, fmt.Errorf("%w: price is required", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)
	if input.TrialDays > 0 {
		form.Set("trial_period_days", strconv.Itoa(input.TrialDays))
	}
	for key, value := range input.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/subscriptions", form, nil)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create subscription status %d", ErrResponseInvalid, statusCode)
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &SubscriptionResult{Raw: raw}
	result.SubscriptionID = strings.TrimSpace(readString(raw, "id"))
	result.Status = strings.TrimSpace(readString(raw, "status"))
	if result.SubscriptionID == "" {
		return nil, fmt.Errorf("%w: missing subscription id", ErrResponseInvalid)
	}
	return result, nil
}

// CreateExpressAccount 创建 Connect Express 收款账户。
func CreateExpressAccount(ctx context.Context, cfg *Config, email string) (*AccountResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	form := url.Values{}
	form.Set("type", "express")
	if email = strings.TrimSpace(email); email != "" {
		form.Set("email", email)
	}
	form.Set("capabilities[transfers][requested]", "true")

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/accounts", form, nil)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create account status %d", ErrResponseInvalid, statusCode)
	}
	return decodeAccountResult(respBody)
}

// CreateAccountLink 创建 Connect 账户引导链接。
func CreateAccountLink(ctx context.Context, cfg *Config, accountID, refreshURL, returnURL string) (string, error) {
	if err := ValidateConfig(cfg); err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", fmt.Errorf("%w: account is required", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("account", accountID)
	form.Set("refresh_url", strings.TrimSpace(refreshURL))
	form.Set("return_url", strings.TrimSpace(returnURL))
	form.Set("type", "account_onboarding")

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/account_links", form, nil)
	if err != nil {
		return "", err
	}
	if statusCode < 200 || statusCode >= 300 {
		return "", fmt.Errorf("%w: create account link status %d", ErrResponseInvalid, statusCode)
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return "", err
	}
	link := strings.TrimSpace(readString(raw, "url"))
	if link == "" {
		return "", fmt.Errorf("%w: missing account link url", ErrResponseInvalid)
	}
	return link, nil
}

// GetAccount 查询 Connect 账户状态。
func GetAccount(ctx context.Context, cfg *Config, accountID string) (*AccountResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: account is required", ErrConfigInvalid)
	}

	path := fmt.Sprintf("/v1/accounts/%s", url.PathEscape(accountID))
	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: query account status %d", ErrResponseInvalid, statusCode)
	}
	return decodeAccountResult(respBody)
}

func decodeAccountResult(respBody []byte) (*AccountResult, error) {
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &AccountResult{Raw: raw}
	result.AccountID = strings.TrimSpace(readString(raw, "id"))
	result.ChargesEnabled = readBool(raw, "charges_enabled")
	result.PayoutsEnabled = readBool(raw, "payouts_enabled")
	result.DetailsSubmitted = readBool(raw, "details_submitted")
	if result.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrResponseInvalid)
	}
	return result, nil
}

func fillEventObject(event *Event, objectRaw map[string]interface{}) {
	objectType := strings.TrimSpace(readString(objectRaw, "object"))
	switch objectType {
	case "invoice":
		invoice := &Invoice{
			ID:             strings.TrimSpace(readString(objectRaw, "id")),
			CustomerID:     strings.TrimSpace(readString(objectRaw, "customer")),
			SubscriptionID: strings.TrimSpace(readString(objectRaw, "subscription")),
			BillingReason:  strings.TrimSpace(readString(objectRaw, "billing_reason")),
			Currency:       strings.ToUpper(strings.TrimSpace(readString(objectRaw, "currency"))),
		}
		if minor := readInt64(objectRaw, "amount_paid"); minor > 0 && invoice.Currency != "" {
			invoice.AmountPaid = fromMinorAmount(minor, invoice.Currency)
		}
		if created := readInt64(objectRaw, "created"); created > 0 {
			paidAt := time.Unix(created, 0)
			invoice.PaidAt = &paidAt
		}
		event.Invoice = invoice
	case "checkout.session":
		metadata := readMap(objectRaw, "metadata")
		session := &CheckoutSession{
			ID:                strings.TrimSpace(readString(objectRaw, "id")),
			CustomerID:        strings.TrimSpace(readString(objectRaw, "customer")),
			Mode:              strings.TrimSpace(readString(objectRaw, "mode")),
			PaymentStatus:     strings.TrimSpace(readString(objectRaw, "payment_status")),
			Currency:          strings.ToUpper(strings.TrimSpace(readString(objectRaw, "currency"))),
			ClientReferenceID: strings.TrimSpace(readString(objectRaw, "client_reference_id")),
			PaymentIntentID:   strings.TrimSpace(readPaymentIntentID(objectRaw)),
			Tier:              strings.TrimSpace(readString(metadata, "tier")),
		}
		if minor := readInt64(objectRaw, "amount_total"); minor > 0 && session.Currency != "" {
			session.AmountTotal = fromMinorAmount(minor, session.Currency)
		}
		event.Session = session
	case "charge":
		charge := &Charge{
			ID:              strings.TrimSpace(readString(objectRaw, "id")),
			InvoiceID:       strings.TrimSpace(readString(objectRaw, "invoice")),
			PaymentIntentID: strings.TrimSpace(readPaymentIntentID(objectRaw)),
			Currency:        strings.ToUpper(strings.TrimSpace(readString(objectRaw, "currency"))),
			Refunded:        readBool(objectRaw, "refunded"),
		}
		if minor := readInt64(objectRaw, "amount_refunded"); minor > 0 && charge.Currency != "" {
			charge.AmountRefunded = fromMinorAmount(minor, charge.Currency)
		}
		event.Charge = charge
	case "subscription":
		metadata := readMap(objectRaw, "metadata")
		subscription := &Subscription{
			ID:         strings.TrimSpace(readString(objectRaw, "id")),
			CustomerID: strings.TrimSpace(readString(objectRaw, "customer")),
			Status:     strings.TrimSpace(readString(objectRaw, "status")),
			Tier:       strings.TrimSpace(readString(metadata, "tier")),
		}
		if items := readMap(objectRaw, "items"); items != nil {
			if dataList, ok := items["data"].([]interface{}); ok && len(dataList) > 0 {
				if first, ok := dataList[0].(map[string]interface{}); ok {
					if price := readMap(first, "price"); price != nil {
						subscription.PriceID = strings.TrimSpace(readString(price, "id"))
					}
				}
			}
		}
		event.Subscription = subscription
	case "account":
		event.Account = &Account{
			ID:               strings.TrimSpace(readString(objectRaw, "id")),
			ChargesEnabled:   readBool(objectRaw, "charges_enabled"),
			PayoutsEnabled:   readBool(objectRaw, "payouts_enabled"),
			DetailsSubmitted: readBool(objectRaw, "details_submitted"),
		}
	}
}

func toMinorAmount(amount decimal.Decimal, currency string) (int64, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}
	scale := currencyScale(currency)
	minor := amount.Shift(int32(scale)).Round(0)
	return minor.IntPart(), nil
}

func fromMinorAmount(minor int64, currency string) decimal.Decimal {
	scale := currencyScale(currency)
	return decimal.NewFromInt(minor).Shift(int32(-scale))
}

func currencyScale(currency string) int {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[upper]; ok {
		return 0
	}
	return 2
}

func doFormRequest(ctx context.Context, cfg *Config, method, path string, form url.Values, extraHeaders map[string]string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for key, value := range extraHeaders {
		req.Header.Set(key, value)
	}

	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func doJSONRequest(ctx context.Context, cfg *Config, method, path string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)

	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func readPaymentIntentID(raw map[string]interface{}) string {
	if raw == nil {
		return ""
	}
	value, ok := raw["payment_intent"]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]interface{}:
		return strings.TrimSpace(readString(typed, "id"))
	default:
		return ""
	}
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	parts := strings.Split(signatureHeader, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}

func getHeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 || strings.TrimSpace(key) == "" {
		return ""
	}
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strings.TrimSpace(strconv.FormatInt(int64(typed), 10))
	case int64:
		return strings.TrimSpace(strconv.FormatInt(typed, 10))
	case int:
		return strings.TrimSpace(strconv.Itoa(typed))
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return nil
	}
	mapped, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil || strings.TrimSpace(key) == "" {
		return 0
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return 0
	}
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatVal, err := typed.Float64()
		if err != nil {
			return 0
		}
		return int64(floatVal)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func readBool(raw map[string]interface{}, key string) bool {
	if raw == nil || strings.TrimSpace(key) == "" {
		return false
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return false
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		return strings.EqualFold(strings.TrimSpace(typed), "true")
	default:
		return false
	}
}
