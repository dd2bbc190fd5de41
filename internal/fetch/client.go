package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"firstpull/internal/first"
)

// maxResponseBytes caps SAS response bodies; report pages are small.
const maxResponseBytes = 5 * 1024 * 1024

// maxWorkbookBytes caps a downloaded workbook.
const maxWorkbookBytes = 50 * 1024 * 1024

// statusSSOChallenge is the SAS middleware's "authenticate first" response.
const statusSSOChallenge = 449

// ClientOptions configure the query client.
type ClientOptions struct {
	// JobURL and Base default to the FIRST endpoints; tests point them at
	// a local server.
	JobURL string
	Base   string

	UserAgent string

	RequestTimeout  time.Duration
	DownloadTimeout time.Duration

	Logger *zap.Logger
}

// Client drives the SAS job endpoint over plain HTTP while sharing the
// browser session: its cookie jar is seeded from the browser and its
// requests carry the browser's user agent.
type Client struct {
	http      *http.Client
	jobURL    string
	base      string
	userAgent string

	requestTimeout  time.Duration
	downloadTimeout time.Duration

	logger *zap.Logger
}

// NewClient builds a client from a live browser session.
func NewClient(ctx context.Context, sess *Session, opts ClientOptions) (*Client, error) {
	cookies, err := sess.Cookies(ctx)
	if err != nil {
		return nil, err
	}

	if opts.UserAgent == "" {
		ua, err := sess.UserAgent(ctx)
		if err != nil {
			return nil, err
		}
		opts.UserAgent = ua
	}

	client, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	client.SeedCookies(cookies)
	return client, nil
}

func newClient(opts ClientOptions) (*Client, error) {
	if opts.JobURL == "" {
		opts.JobURL = first.JobURL
	}
	if opts.Base == "" {
		opts.Base = first.Base
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 120 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	return &Client{
		http:            &http.Client{Jar: jar},
		jobURL:          opts.JobURL,
		base:            opts.Base,
		userAgent:       opts.UserAgent,
		requestTimeout:  opts.RequestTimeout,
		downloadTimeout: opts.DownloadTimeout,
		logger:          opts.Logger,
	}, nil
}

// SeedCookies installs browser cookies into the jar under the base origin.
func (c *Client) SeedCookies(cookies []*http.Cookie) {
	u, err := url.Parse(c.base)
	if err != nil {
		return
	}
	c.http.Jar.SetCookies(u, cookies)
}

func (c *Client) queryPageURL() string { return c.base + "/query" }

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("Referer", c.queryPageURL())
	req.Header.Set("Origin", c.base)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

// PostQuery posts the SAS query and returns the response body. An HTTP 449
// challenge is handled by following the returned auth URI and retrying the
// post once. Any other status returns the body as-is; a failed job shows up
// downstream as a page without a download link.
func (c *Client) PostQuery(ctx context.Context, q first.Query) (string, error) {
	body := q.Form().Encode()

	status, text, err := c.postForm(ctx, c.jobURL, body, true)
	if err != nil {
		return "", err
	}

	if status == statusSSOChallenge {
		authURL := c.authURLFrom(text)
		if authURL == "" {
			return "", fmt.Errorf("sso challenge without auth uri")
		}
		c.logger.Info("following sso auth uri", zap.String("url", authURL))

		if err := c.get(ctx, authURL); err != nil {
			return "", fmt.Errorf("sso auth: %w", err)
		}

		status, text, err = c.postForm(ctx, c.jobURL, body, true)
		if err != nil {
			return "", err
		}
		c.logger.Debug("query retried after sso", zap.Int("status", status))
	}

	return text, nil
}

// authURLFrom extracts the auth URI from a 449 response body.
func (c *Client) authURLFrom(body string) string {
	var challenge struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal([]byte(body), &challenge); err != nil || challenge.URI == "" {
		return ""
	}
	if strings.HasPrefix(challenge.URI, "http") {
		return challenge.URI
	}
	return c.base + challenge.URI
}

// SubmitProgressForm posts an auto-submitting ProgressForm once and returns
// the resulting page.
func (c *Client) SubmitProgressForm(ctx context.Context, form *ProgressForm) (string, error) {
	action := form.Action
	switch {
	case action == "":
		action = c.jobURL
	case strings.HasPrefix(action, "/"):
		action = c.base + action
	}

	c.logger.Debug("submitting progress form", zap.String("action", action))

	status, text, err := c.postForm(ctx, action, form.Fields.Encode(), false)
	if err != nil {
		return "", fmt.Errorf("submit progress form: %w", err)
	}
	c.logger.Debug("progress form submitted",
		zap.Int("status", status),
		zap.Int("length", len(text)))
	return text, nil
}

// Download fetches the workbook and returns its bytes. Anything but 200 is
// an error.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWorkbookBytes))
	if err != nil {
		return nil, fmt.Errorf("read download: %w", err)
	}
	return data, nil
}

func (c *Client) postForm(ctx context.Context, target, body string, ajax bool) (int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	c.setCommonHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if ajax {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		req.Header.Set("Accept", "*/*")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, "", fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, string(data), nil
}

func (c *Client) get(ctx context.Context, target string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return nil
}
