package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"firstpull/internal/first"
)

// SessionOptions configure the browser session.
type SessionOptions struct {
	// Bin pins the browser binary. Empty lets the launcher find or
	// download one.
	Bin string

	// Headless hides the browser window. SHOW_BROWSER turns it off.
	Headless bool

	// ProfileDir is the user data dir, recreated with the workspace.
	ProfileDir string

	NavigationTimeout time.Duration

	Logger *zap.Logger
}

// Session is the live browser the fetcher drives: one page that bootstraps
// cookies and hosts the DOM polling for download links.
type Session struct {
	opts    SessionOptions
	launch  *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
	logger  *zap.Logger
}

// NewSession launches the browser and connects to it.
func NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}

	launch := launcher.New().Headless(opts.Headless)
	if opts.Bin != "" {
		launch = launch.Bin(opts.Bin)
	}
	if opts.ProfileDir != "" {
		launch = launch.UserDataDir(opts.ProfileDir)
	}

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		launch.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}

	logger.Debug("browser session started",
		zap.Bool("headless", opts.Headless),
		zap.String("bin", opts.Bin))

	return &Session{
		opts:    opts,
		launch:  launch,
		browser: browser,
		page:    page,
		logger:  logger,
	}, nil
}

// Close shuts the browser down and cleans the launcher's temp state.
func (s *Session) Close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.launch != nil {
		s.launch.Cleanup()
	}
}

// OpenQueryPage navigates to the FIRST query page once so the session picks
// up its cookies.
func (s *Session) OpenQueryPage(ctx context.Context) error {
	return s.Navigate(ctx, first.QueryPageURL)
}

// Navigate loads a URL and waits for it to finish loading.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.opts.NavigationTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s: %w", url, err)
	}
	return nil
}

// Cookies snapshots the browser's cookies for the HTTP client.
func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	res, err := proto.NetworkGetCookies{}.Call(s.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return cookies, nil
}

// UserAgent reports the browser's user agent so HTTP requests match the
// session.
func (s *Session) UserAgent(ctx context.Context) (string, error) {
	version, err := proto.BrowserGetVersion{}.Call(s.browser.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("browser version: %w", err)
	}
	return version.UserAgent, nil
}

// SetHTML loads the given HTML into the page DOM so inline scripts run and
// the result can be polled.
func (s *Session) SetHTML(ctx context.Context, html string) error {
	if err := s.page.Context(ctx).SetDocumentContent(html); err != nil {
		return fmt.Errorf("set page content: %w", err)
	}
	return nil
}

// WaitDownloadLink polls the page DOM for the workbook download anchor and
// returns its href. A JS querySelector runs once as fallback before giving
// up.
func (s *Session) WaitDownloadLink(ctx context.Context, timeout time.Duration) (string, error) {
	el, err := s.page.Context(ctx).Timeout(timeout).Element(first.DownloadLinkSelector)
	if err == nil {
		href, attrErr := el.Attribute("href")
		if attrErr == nil && href != nil && *href != "" {
			return *href, nil
		}
	}

	res, evalErr := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		ByValue: true,
		JS: `() => {
			const a = document.querySelector('a[download$=".xlsx"], a[href$=".xlsx"], a[href*="/files/files/"]');
			return a ? a.getAttribute('href') : null;
		}`,
	})
	if evalErr == nil && res != nil && !res.Value.Nil() {
		if href := res.Value.Str(); href != "" {
			return href, nil
		}
	}

	return "", fmt.Errorf("download link did not appear within %s", timeout)
}
