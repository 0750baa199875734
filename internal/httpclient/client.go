// Package httpclient はOIDCプロバイダーとの通信に使うHTTPトランスポートを提供する。
package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/weekly/internal/model"
)

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 1 << 20

// Request は送信するリクエスト。
type Request struct {
	URL    string
	Header http.Header
	Body   string
}

// Response は受信したレスポンス。ボディは読み取り済み。
type Response struct {
	Status int
	Header http.Header
	Body   string
}

// OK はステータスが2xxかどうかを返す。
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Session はHTTPトランスポートのインターフェース。
// テストではモック実装に差し替える。
type Session interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
}

// Observer は外部呼び出しの結果を受け取る。
// 通信失敗時のstatusは0。
type Observer interface {
	ObserveUpstream(method string, status int, duration time.Duration)
}

// Client はnet/httpによるSessionの実装。
// 内部のhttp.Clientは複数のgoroutineから共有して使える。
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	observer   Observer
}

// NewClient はClientを生成する。
// timeoutは1回の呼び出しごとの期限で、0以下なら期限を設けない。observerはnilでもよい。
func NewClient(timeout time.Duration, observer Observer) *Client {
	return &Client{
		httpClient: &http.Client{
			// リダイレクトは追わず、3xxをそのまま呼び出し元に返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:  timeout,
		observer: observer,
	}
}

// Get はGETリクエストを送信する。
func (c *Client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodGet, req)
}

// Post はPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodPost, req)
}

func (c *Client) do(ctx context.Context, method string, req *Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewBufferString(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, model.NewRuntimeError("Invalid request to %s: %v", req.URL, err)
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(method, 0, start)
		return nil, model.NewRuntimeError("HTTP request to %s failed: %v", req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.observe(method, resp.StatusCode, start)
	if err != nil {
		return nil, model.NewRuntimeError("Failed to read response from %s: %v", req.URL, err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   string(data),
	}, nil
}

func (c *Client) observe(method string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(method, status, time.Since(start))
	}
}

// compile-time interface check
var _ Session = (*Client)(nil)
