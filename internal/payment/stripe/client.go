package stripe

import "context"

// Client 绑定配置的 Stripe 客户端封装
type Client struct {
	cfg *Config
}

// NewClient 创建客户端
func NewClient(cfg *Config) *Client {
	if cfg != nil {
		cfg.Normalize()
	}
	return &Client{cfg: cfg}
}

// Config 返回当前配置
func (c *Client) Config() *Config {
	if c == nil {
		return nil
	}
	return c.cfg
}

// CreateTransfer 向 Connect 账户划款
func (c *Client) CreateTransfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	return CreateTransfer(ctx, c.cfg, input)
}

// CreateSubscription 为客户创建订阅
func (c *Client) CreateSubscription(ctx context.Context, input SubscriptionInput) (*SubscriptionResult, error) {
	return CreateSubscription(ctx, c.cfg, input)
}

// CreateExpressAccount 创建 Connect Express 收款账户
func (c *Client) CreateExpressAccount(ctx context.Context, email string) (*AccountResult, error) {
	return CreateExpressAccount(ctx, c.cfg, email)
}

// CreateAccountLink 创建 Connect 账户引导链接
func (c *Client) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return CreateAccountLink(ctx, c.cfg, accountID, refreshURL, returnURL)
}

// GetAccount 查询 Connect 账户状态
func (c *Client) GetAccount(ctx context.Context, accountID string) (*AccountResult, error) {
	return GetAccount(ctx, c.cfg, accountID)
}
