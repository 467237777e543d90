package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fetch defaults.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; ResumeOrchestrator/1.0)"
	// MinContentLength is the extracted length below which a page is treated
	// as script-rendered and retried in a browser.
	MinContentLength = 500
	maxBodyBytes     = 5 << 20
)

// FetchError represents an error fetching a job posting.
type FetchError struct {
	URL     string
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// FetchOptions configures FetchJobDescription.
type FetchOptions struct {
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	// UseBrowser enables headless rendering when the plain fetch yields too little text.
	UseBrowser     bool
	BrowserTimeout time.Duration
	Logger         *slog.Logger
}

// FetchJobDescription downloads a job posting and returns its cleaned text.
func FetchJobDescription(ctx context.Context, rawURL string, opts FetchOptions) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", &FetchError{URL: rawURL, Message: "invalid URL", Cause: err}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	html, err := fetchHTML(ctx, rawURL, opts)
	if err != nil {
		return "", err
	}
	selectors := SelectorsForURL(rawURL)
	text, err := TextFromHTML(html, selectors)
	if err != nil {
		return "", &FetchError{URL: rawURL, Message: "content extraction failed", Cause: err}
	}
	logger.Debug("fetched job posting", "url", rawURL, "html_bytes", len(html), "text_chars", len(text))

	if opts.UseBrowser && len(strings.TrimSpace(text)) < MinContentLength {
		logger.Info("page content short, rendering with browser", "url", rawURL, "chars", len(text))
		rendered, err := RenderWithBrowser(ctx, rawURL, opts.BrowserTimeout)
		if err != nil {
			return "", &FetchError{URL: rawURL, Message: "browser rendering failed", Cause: err}
		}
		if text, err = TextFromHTML(rendered, selectors); err != nil {
			return "", &FetchError{URL: rawURL, Message: "content extraction failed", Cause: err}
		}
	}

	cleaned := CleanText(text)
	if cleaned == "" {
		return "", &FetchError{URL: rawURL, Message: "no text content found"}
	}
	return cleaned, nil
}

func fetchHTML(ctx context.Context, rawURL string, opts FetchOptions) (string, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: rawURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &FetchError{URL: rawURL, Message: "failed to read response body", Cause: err}
	}
	return string(body), nil
}
