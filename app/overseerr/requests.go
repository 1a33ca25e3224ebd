package overseerr

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// DefaultPageSize 待审批列表默认分页大小，服务端另有硬上限
const DefaultPageSize = 20

// PendingRequests 拉取一页待审批请求。page 从 1 开始。
// 首页用长超时，冷连接下首个请求经常偏慢；列表拉取走多次重试策略。
func (c *Client) PendingRequests(ctx context.Context, page, pageSize int) (*RequestPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	timeout := timeoutMutate
	if page == 1 {
		timeout = timeoutFirstPage
	}

	query := url.Values{}
	query.Set("filter", "pending")
	query.Set("take", strconv.Itoa(pageSize))
	query.Set("skip", strconv.Itoa((page-1)*pageSize))

	var result *RequestPage
	err := c.ListPolicy.Do(ctx, c.log, "fetch pending requests", func() error {
		var list apiRequestList
		if _, err := c.call(ctx, callOpts{
			method:    "GET",
			path:      "/request",
			query:     query,
			timeout:   timeout,
			useAPIKey: true,
		}, &list); err != nil {
			return err
		}

		items := make([]MediaRequest, 0, len(list.Results))
		for _, r := range list.Results {
			items = append(items, r.toMediaRequest())
		}
		result = &RequestPage{
			Items:   items,
			Total:   list.PageInfo.Results,
			HasMore: list.PageInfo.Page < list.PageInfo.Pages,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Infof("拉取到 %d 条待审批请求（第 %d 页，共 %d 条）", len(result.Items), page, result.Total)
	return result, nil
}

// RequestDetails 按 ID 获取单条请求
func (c *Client) RequestDetails(ctx context.Context, requestID int) (*MediaRequest, error) {
	var raw apiRequest
	if _, err := c.call(ctx, callOpts{
		method:    "GET",
		path:      fmt.Sprintf("/request/%d", requestID),
		timeout:   timeoutStandard,
		useAPIKey: true,
	}, &raw); err != nil {
		return nil, err
	}
	req := raw.toMediaRequest()
	return &req, nil
}

// Approve 批准请求。有副作用的调用只允许少量重试，避免重复执行。
func (c *Client) Approve(ctx context.Context, requestID int) error {
	return c.MutatePolicy.Do(ctx, c.log, "approve request", func() error {
		_, err := c.call(ctx, callOpts{
			method:    "POST",
			path:      fmt.Sprintf("/request/%d/approve", requestID),
			timeout:   timeoutMutate,
			useAPIKey: true,
		}, nil)
		return err
	})
}

// Decline 拒绝请求，reason 可为空
func (c *Client) Decline(ctx context.Context, requestID int, reason string) error {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	return c.MutatePolicy.Do(ctx, c.log, "decline request", func() error {
		_, err := c.call(ctx, callOpts{
			method:    "POST",
			path:      fmt.Sprintf("/request/%d/decline", requestID),
			body:      body,
			timeout:   timeoutMutate,
			useAPIKey: true,
		}, nil)
		return err
	})
}

// PendingRequestsEnriched 拉取一页并逐条补充元数据。
// 单条补充失败只计数不中断，failed 报告退化条数。
func (c *Client) PendingRequestsEnriched(ctx context.Context, page, pageSize int) (items []EnrichedMedia, total int, failed int, err error) {
	reqPage, err := c.PendingRequests(ctx, page, pageSize)
	if err != nil {
		return nil, 0, 0, err
	}

	items = make([]EnrichedMedia, 0, len(reqPage.Items))
	for _, req := range reqPage.Items {
		enriched := c.Enrich(ctx, req)
		if enriched.Degraded {
			failed++
		}
		items = append(items, enriched)
	}
	return items, reqPage.Total, failed, nil
}
