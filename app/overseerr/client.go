package overseerr

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"seerr-relay/app/config"
	"seerr-relay/app/logger"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"resty.dev/v3"
)

// 各类操作的默认超时。
// 有效性探测用短超时，首页拉取因为冷连接可能较慢用长超时。
const (
	timeoutProbe     = 5 * time.Second
	timeoutStandard  = 10 * time.Second
	timeoutMutate    = 15 * time.Second
	timeoutDetail    = 12 * time.Second
	timeoutFirstPage = 30 * time.Second
)

// Client Overseerr API 客户端。
// 本层只负责发请求、解析响应、抛出分类错误，重试由 Policy 完成。
type Client struct {
	base   string // 规范化后的根地址，已含 /api/v1
	apiKey string
	http   *resty.Client
	log    *logger.Logger

	metaCache *cache.Cache // (tmdbID, 类型) -> 媒体详情

	// 按端点类别调优的重试策略，测试可覆盖
	ListPolicy   Policy
	MutatePolicy Policy
	DetailPolicy Policy
}

// New 创建 Overseerr 客户端
func New(cfg config.OverseerrConfig, log *logger.Logger) *Client {
	client := resty.New()
	client.SetBaseURL(NormalizeBaseURL(cfg.URL))

	return &Client{
		base:         NormalizeBaseURL(cfg.URL),
		apiKey:       cfg.APIKey,
		http:         client,
		log:          log,
		metaCache:    cache.New(5*time.Minute, 10*time.Minute),
		ListPolicy:   Policy{MaxAttempts: 4, BaseDelay: 2 * time.Second, BackoffFactor: 2.0},
		MutatePolicy: Policy{MaxAttempts: 2, BaseDelay: 1500 * time.Millisecond, BackoffFactor: 2.0},
		DetailPolicy: Policy{MaxAttempts: 2, BaseDelay: time.Second, BackoffFactor: 2.0},
	}
}

// NormalizeBaseURL 规范化服务器地址，/api/v1 后缀至多追加一次
func NormalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.HasSuffix(base, "/api/v1") {
		return base
	}
	return base + "/api/v1"
}

// callOpts 单次调用参数。cookie 与 API Key 互斥：cookie 非空时优先，
// useAPIKey 为 false 且 cookie 为空则完全不带认证（登录接口）。
type callOpts struct {
	method    string
	path      string
	query     url.Values
	body      any
	timeout   time.Duration
	cookie    string
	useAPIKey bool
}

// call 执行一次调用，2xx 时把响应体解析进 out（可为 nil），
// 其余情况返回 *APIError。
func (c *Client) call(ctx context.Context, opts callOpts, out any) (*resty.Response, error) {
	if opts.timeout <= 0 {
		opts.timeout = timeoutStandard
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	req := c.http.R().SetContext(ctx)
	req.SetHeader("Accept", "application/json")

	// 认证头：每次调用只带一种
	if opts.cookie != "" {
		req.SetHeader("Cookie", "connect.sid="+opts.cookie)
	} else if opts.useAPIKey {
		req.SetHeader("X-Api-Key", c.apiKey)
	}

	if len(opts.query) > 0 {
		req.SetQueryParamsFromValues(opts.query)
	}
	if opts.body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(opts.body)
	}

	start := time.Now()
	resp, err := req.Execute(opts.method, opts.path)
	elapsed := time.Since(start)

	if err != nil {
		apiErr := NewTransportError(err)
		c.log.Warn("overseerr 调用失败",
			zap.String("method", opts.method),
			zap.String("endpoint", opts.path),
			zap.String("kind", string(apiErr.Kind)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, apiErr
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		apiErr := NewStatusError(resp.StatusCode(), resp.String())
		c.log.Warn("overseerr 调用失败",
			zap.String("method", opts.method),
			zap.String("endpoint", opts.path),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("elapsed", elapsed))
		return resp, apiErr
	}

	// 自己解正文，不依赖响应 Content-Type；解不开的 2xx 正文按错误抛出
	if out != nil {
		if err := json.Unmarshal(resp.Bytes(), out); err != nil {
			apiErr := &APIError{
				Kind:    KindUnknown,
				Message: "响应解析失败",
				Body:    resp.String(),
				cause:   err,
			}
			c.log.Warn("overseerr 响应解析失败",
				zap.String("method", opts.method),
				zap.String("endpoint", opts.path),
				zap.Int("status", resp.StatusCode()),
				zap.Error(err))
			return resp, apiErr
		}
	}

	c.log.Debug("overseerr 调用成功",
		zap.String("method", opts.method),
		zap.String("endpoint", opts.path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}

// Reachable 轻量探测服务器是否可达，健康检查用
func (c *Client) Reachable(ctx context.Context) bool {
	_, err := c.call(ctx, callOpts{
		method:    "GET",
		path:      "/status",
		timeout:   timeoutProbe,
		useAPIKey: false,
	}, nil)
	return err == nil
}
