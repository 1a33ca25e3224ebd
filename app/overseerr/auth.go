package overseerr

import (
	"context"
	"errors"
	"net/url"
)

// Login 用邮箱密码登录并返回 connect.sid 会话 Cookie（Normal 模式）
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	resp, err := c.call(ctx, callOpts{
		method: "POST",
		path:   "/auth/local",
		body: map[string]string{
			"email":    email,
			"password": password,
		},
		timeout: timeoutStandard,
	}, nil)
	if err != nil {
		return "", err
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "connect.sid" {
			return cookie.Value, nil
		}
	}
	return "", errors.New("登录响应未携带 connect.sid")
}

// Logout 注销会话
func (c *Client) Logout(ctx context.Context, cookie string) error {
	_, err := c.call(ctx, callOpts{
		method:  "POST",
		path:    "/auth/logout",
		timeout: timeoutStandard,
		cookie:  cookie,
	}, nil)
	return err
}

// CheckSession 用短超时探测会话是否仍然有效
func (c *Client) CheckSession(ctx context.Context, cookie string) bool {
	_, err := c.call(ctx, callOpts{
		method:  "GET",
		path:    "/auth/me",
		timeout: timeoutProbe,
		cookie:  cookie,
	}, nil)
	return err == nil
}

// User Overseerr 用户，API 模式下供选择代为请求的身份
type User struct {
	ID          int    `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type apiUserList struct {
	Results []User `json:"results"`
}

// Users 获取 Overseerr 用户列表
func (c *Client) Users(ctx context.Context) ([]User, error) {
	query := url.Values{}
	query.Set("take", "256")

	var list apiUserList
	if _, err := c.call(ctx, callOpts{
		method:    "GET",
		path:      "/user",
		query:     query,
		timeout:   timeoutStandard,
		useAPIKey: true,
	}, &list); err != nil {
		return nil, err
	}
	return list.Results, nil
}
