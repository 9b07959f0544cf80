package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultWeChatURL = "https://api.weixin.qq.com"

// WeChat error codes that invalidate the cached access token.
const (
	wechatTokenInvalid = 40001
	wechatTokenExpired = 42001
)

// WeChatChecker calls the mini-program img_sec_check API.
type WeChatChecker struct {
	appID   string
	secret  string
	baseURL string
	client  *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewWeChatChecker creates a checker for the given mini-program
// credentials. An empty baseURL selects the public API host.
func NewWeChatChecker(appID, secret, baseURL string, timeout time.Duration) *WeChatChecker {
	if baseURL == "" {
		baseURL = defaultWeChatURL
	}
	return &WeChatChecker{
		appID:   appID,
		secret:  secret,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type wechatResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type wechatTokenResponse struct {
	wechatResponse
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Check uploads payload as the media field and returns WeChat's errcode.
func (c *WeChatChecker) Check(ctx context.Context, payload []byte, contentType string) (int, error) {
	code, err := c.check(ctx, payload, contentType)
	if err == nil && (code == wechatTokenInvalid || code == wechatTokenExpired) {
		c.invalidate()
		code, err = c.check(ctx, payload, contentType)
	}
	return code, err
}

func (c *WeChatChecker) check(ctx context.Context, payload []byte, contentType string) (int, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return 0, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="media"; filename="image"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return 0, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return 0, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := c.baseURL + "/wxa/img_sec_check?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp wechatResponse
	if err := c.do(req, &resp); err != nil {
		return 0, err
	}
	return resp.ErrCode, nil
}

func (c *WeChatChecker) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.expires) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", c.appID)
	q.Set("secret", c.secret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cgi-bin/token?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	var resp wechatTokenResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.ErrCode != 0 {
		return "", &CodeError{Code: resp.ErrCode, Message: resp.ErrMsg}
	}
	if resp.AccessToken == "" {
		return "", errors.New("empty access token")
	}

	// Expire the cached token a minute early.
	ttl := time.Duration(resp.ExpiresIn)*time.Second - time.Minute
	c.mu.Lock()
	c.token = resp.AccessToken
	c.expires = time.Now().Add(max(ttl, 0))
	c.mu.Unlock()
	return resp.AccessToken, nil
}

func (c *WeChatChecker) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *WeChatChecker) do(req *http.Request, result any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
