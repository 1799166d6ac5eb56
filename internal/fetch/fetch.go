// Package fetch retrieves subscription bodies over HTTP(S) with bounded
// timeout, redirect and size limits.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/subgeo/subgeo/internal/model"
)

type Options struct {
	Timeout      time.Duration // default 30s
	MaxBytes     int64         // default 5 MiB
	MaxRedirects int           // default 5
}

type FetchError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

var (
	errTooManyRedirects  = errors.New("too many redirects")
	errRedirectBadScheme = errors.New("redirect target scheme is not http/https")
)

func Text(ctx context.Context, rawURL string) (string, error) {
	return TextWithOptions(ctx, rawURL, Options{})
}

func TextWithOptions(ctx context.Context, rawURL string, opt Options) (string, error) {
	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRedirects := opt.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = 5
	}
	maxBytes := opt.MaxBytes
	if maxBytes == 0 {
		maxBytes = 5 * 1024 * 1024
	}

	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fetchErr(http.StatusBadRequest, "INVALID_ARGUMENT", "仅允许 http/https URL", rawURL, err)
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return errRedirectBadScheme
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fetchErr(http.StatusBadRequest, "INVALID_ARGUMENT", "请求 URL 不合法", rawURL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, errTooManyRedirects) {
			return "", fetchErr(http.StatusBadGateway, "FETCH_FAILED", fmt.Sprintf("重定向次数超过上限（>%d）", maxRedirects), rawURL, err)
		}
		if errors.Is(err, errRedirectBadScheme) {
			return "", fetchErr(http.StatusBadRequest, "INVALID_ARGUMENT", "重定向目标仅允许 http/https", rawURL, err)
		}
		if isTimeout(err) {
			return "", fetchErr(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取订阅超时", rawURL, err)
		}
		return "", fetchErr(http.StatusBadGateway, "FETCH_FAILED", "拉取订阅失败", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fetchErr(http.StatusBadGateway, "FETCH_FAILED", fmt.Sprintf("上游返回非 2xx 状态码：%d", resp.StatusCode), rawURL, nil)
	}

	// Read at most maxBytes+1 to detect overflow deterministically.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return "", fetchErr(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取订阅超时", rawURL, err)
		}
		return "", fetchErr(http.StatusBadGateway, "FETCH_FAILED", "读取上游响应失败", rawURL, err)
	}
	if int64(len(body)) > maxBytes {
		return "", fetchErr(http.StatusUnprocessableEntity, "TOO_LARGE", fmt.Sprintf("订阅过大（>%d bytes）", maxBytes), rawURL, nil)
	}
	if !utf8.Valid(body) {
		return "", fetchErr(http.StatusUnprocessableEntity, "FETCH_INVALID_UTF8", "订阅不是合法 UTF-8 文本", rawURL, nil)
	}

	return string(body), nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func fetchErr(status int, code, message, rawURL string, cause error) error {
	return &FetchError{
		Status: status,
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "fetch_sub",
			URL:     rawURL,
		},
		Cause: cause,
	}
}
