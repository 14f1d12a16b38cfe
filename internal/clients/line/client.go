package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/httpx"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
	"github.com/mapleroute/quotebot-backend/internal/services"
)

// Client pushes messages through the LINE Messaging API. It also serves as
// the quote flow's messenger, rendering the flex cards the flow asks for.
type Client interface {
	services.QuoteMessenger

	ReplyText(ctx context.Context, replyToken, text string) error
}

type Config struct {
	ChannelToken  string
	ChannelSecret string
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
}

func ConfigFromEnv() Config {
	return Config{
		ChannelToken:  strings.TrimSpace(os.Getenv("LINE_CHANNEL_TOKEN")),
		ChannelSecret: strings.TrimSpace(os.Getenv("LINE_CHANNEL_SECRET")),
		BaseURL:       strings.TrimSpace(os.Getenv("LINE_BASE_URL")),
		Timeout:       10 * time.Second,
		MaxRetries:    2,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ChannelToken == "" {
		return nil, fmt.Errorf("missing LINE_CHANNEL_TOKEN")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.line.me"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &client{
		log:        log.With("client", "LineClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

// VerifySignature checks the X-Line-Signature header against the raw
// webhook body using the channel secret.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ---------- wire types ----------

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type flexMessage struct {
	Type     string         `json:"type"`
	AltText  string         `json:"altText"`
	Contents map[string]any `json:"contents"`
}

type pushRequest struct {
	To       string `json:"to"`
	Messages []any  `json:"messages"`
}

type replyRequest struct {
	ReplyToken string `json:"replyToken"`
	Messages   []any  `json:"messages"`
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("line http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// ---------- messenger ----------

func (c *client) PushText(ctx context.Context, to, text string) error {
	if to == "" {
		return fmt.Errorf("line: push target required")
	}
	return c.post(ctx, "/v2/bot/message/push", pushRequest{
		To:       to,
		Messages: []any{textMessage{Type: "text", Text: text}},
	})
}

func (c *client) ReplyText(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return fmt.Errorf("line: reply token required")
	}
	return c.post(ctx, "/v2/bot/message/reply", replyRequest{
		ReplyToken: replyToken,
		Messages:   []any{textMessage{Type: "text", Text: text}},
	})
}

func (c *client) pushFlex(ctx context.Context, to, altText string, contents map[string]any) error {
	if to == "" {
		return fmt.Errorf("line: push target required")
	}
	return c.post(ctx, "/v2/bot/message/push", pushRequest{
		To:       to,
		Messages: []any{flexMessage{Type: "flex", AltText: altText, Contents: contents}},
	})
}

func (c *client) PushConfirmCard(ctx context.Context, to string, parsed domain.ParsedInput) error {
	return c.pushFlex(ctx, to, "Confirm package details", buildConfirmFlex(parsed))
}

func (c *client) PushModeCard(ctx context.Context, to string) error {
	return c.pushFlex(ctx, to, "Pick a shipping mode", buildModeFlex())
}

func (c *client) PushComparisonCard(ctx context.Context, to string, rows []services.ComparisonRow) error {
	return c.pushFlex(ctx, to, "Rate comparison", buildComparisonFlex(rows))
}

func (c *client) PushActionsCard(ctx context.Context, to string, actions []string) error {
	return c.pushFlex(ctx, to, "What next?", buildActionsFlex(actions))
}

// ---------- HTTP / retry ----------

func (c *client) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("line encode request: %w", err)
	}

	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := c.postOnce(ctx, path, raw)
		if err == nil {
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *client) postOnce(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.ChannelToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return resp, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}
