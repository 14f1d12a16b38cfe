package tripleeagle

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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/httpx"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

// Client talks to the Triple Eagle eship API. Quotes cover the UPS, FedEx
// and Purolator services the account has contracted rates for.
type Client interface {
	GetQuotes(ctx context.Context, fromPostal, toPostal string, packages []domain.Package) ([]domain.ServiceQuote, error)
}

type Config struct {
	AppID      string
	AppSecret  string
	BaseURL    string
	Insurance  float64
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	timeoutSec := 30
	if v := strings.TrimSpace(os.Getenv("TE_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeoutSec = n
		}
	}
	insurance := 100.0
	if v := strings.TrimSpace(os.Getenv("TE_INSURANCE_CAD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			insurance = f
		}
	}
	return Config{
		AppID:      strings.TrimSpace(os.Getenv("TE_APP_ID")),
		AppSecret:  strings.TrimSpace(os.Getenv("TE_APP_SECRET")),
		BaseURL:    strings.TrimSpace(os.Getenv("TE_BASE_URL")),
		Insurance:  insurance,
		Timeout:    time.Duration(timeoutSec) * time.Second,
		MaxRetries: 3,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("missing TE_APP_ID")
	}
	if cfg.AppSecret == "" {
		return nil, fmt.Errorf("missing TE_APP_SECRET")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://eship.tripleeaglelogistics.com/api"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Insurance <= 0 {
		cfg.Insurance = 100
	}

	return &client{
		log:        log.With("client", "TripleEagleClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// ---------- request signing ----------

// rfc3986Escape percent-encodes everything except the unreserved set.
// Matches encodeURIComponent with '~' kept literal, which is what the API
// verifies against.
func rfc3986Escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

// canonicalQuery renders params as an escaped querystring with keys sorted
// ascending. The signature is computed over exactly this string.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+rfc3986Escape(params[k]))
	}
	return strings.Join(parts, "&")
}

func sign(params map[string]string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalQuery(params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ---------- wire types ----------

// flexFloat tolerates the API returning numbers as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

type endpointSpec struct {
	RegionID   string `json:"region_id"`
	PostalCode string `json:"postalcode"`
	Type       string `json:"type"`
}

type dimensionSpec struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type packageItem struct {
	Weight    float64       `json:"weight"`
	Dimension dimensionSpec `json:"dimension"`
	Insurance float64       `json:"insurance"`
}

type quoteRequest struct {
	Initiation  endpointSpec `json:"initiation"`
	Destination endpointSpec `json:"destination"`
	Package     struct {
		Type     string        `json:"type"`
		Packages []packageItem `json:"packages"`
	} `json:"package"`
	Option struct {
		Memo string `json:"memo"`
	} `json:"option"`
}

type chargeDetail struct {
	Name  string    `json:"name"`
	Price flexFloat `json:"price"`
}

type serviceEntry struct {
	Name          string         `json:"name"`
	Freight       flexFloat      `json:"freight"`
	Charge        flexFloat      `json:"charge"`
	ETA           string         `json:"eta"`
	TaxDetails    []chargeDetail `json:"tax_details"`
	ChargeDetails []chargeDetail `json:"charge_details"`
}

type carrierEntry struct {
	Name     string         `json:"name"`
	Services []serviceEntry `json:"services"`
}

type apiResponse struct {
	Status   int             `json:"status"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("tripleeagle http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// ---------- API ----------

const cmPerInch = 2.54

func toInches(cm float64) float64 {
	v := cm / cmPerInch
	return float64(int(v*100+0.5)) / 100
}

func compactPostal(pc string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(pc), " ", ""))
}

func (c *client) GetQuotes(ctx context.Context, fromPostal, toPostal string, packages []domain.Package) ([]domain.ServiceQuote, error) {
	if len(packages) == 0 {
		return nil, fmt.Errorf("tripleeagle: packages required")
	}

	items := make([]packageItem, 0, len(packages))
	for _, p := range packages {
		items = append(items, packageItem{
			Weight: p.Weight,
			Dimension: dimensionSpec{
				Length: toInches(p.Length),
				Width:  toInches(p.Width),
				Height: toInches(p.Height),
			},
			Insurance: c.cfg.Insurance,
		})
	}

	var req quoteRequest
	req.Initiation = endpointSpec{RegionID: "CA", PostalCode: compactPostal(fromPostal), Type: "commercial"}
	req.Destination = endpointSpec{RegionID: "CA", PostalCode: compactPostal(toPostal), Type: "commercial"}
	req.Package.Type = "parcel"
	req.Package.Packages = items
	req.Option.Memo = "Parcel"

	resp, err := c.call(ctx, "shipment/quote", req)
	if err != nil {
		return nil, err
	}

	var carriers []carrierEntry
	if err := json.Unmarshal(resp.Response, &carriers); err != nil {
		return nil, fmt.Errorf("tripleeagle decode quote response: %w", err)
	}

	var quotes []domain.ServiceQuote
	for _, carrier := range carriers {
		vendor := carrier.Name
		if vendor == "" {
			vendor = "Unknown"
		}
		for _, svc := range carrier.Services {
			var tax, surcharges float64
			var details []string
			for _, t := range svc.TaxDetails {
				tax += float64(t.Price)
			}
			for _, d := range svc.ChargeDetails {
				surcharges += float64(d.Price)
				details = append(details, fmt.Sprintf("%s: $%.2f", d.Name, float64(d.Price)))
			}
			eta := svc.ETA
			if eta == "" {
				eta = "N/A"
			}
			quotes = append(quotes, domain.ServiceQuote{
				Carrier:          vendor,
				Name:             svc.Name,
				Freight:          float64(svc.Freight),
				Surcharges:       surcharges,
				Tax:              tax,
				Total:            float64(svc.Charge),
				ETA:              eta,
				SurchargeDetails: strings.Join(details, "; "),
				Source:           domain.SourceTripleEagle,
			})
		}
	}

	c.log.Debug("quote response parsed", "carriers", len(carriers), "services", len(quotes))
	return quotes, nil
}

// call signs and issues one API action, retrying transient failures.
func (c *client) call(ctx context.Context, action string, payload any) (*apiResponse, error) {
	params := map[string]string{
		"id":        c.cfg.AppID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"format":    "json",
		"action":    action,
	}
	params["sign"] = sign(params, c.cfg.AppSecret)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	qs := make([]string, 0, len(keys))
	for _, k := range keys {
		qs = append(qs, k+"="+rfc3986Escape(params[k]))
	}
	urlStr := c.cfg.BaseURL + "?" + strings.Join(qs, "&")

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tripleeagle encode payload: %w", err)
	}

	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, resp, err := c.doOnce(ctx, urlStr, body)
		if err == nil {
			return out, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("request retrying",
			"action", action,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, fmt.Errorf("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, urlStr string, body []byte) (*apiResponse, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resp, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, resp, fmt.Errorf("tripleeagle decode error: %w", err)
	}
	if out.Status != 1 {
		return nil, resp, fmt.Errorf("tripleeagle api status %d: %s", out.Status, out.Message)
	}
	return &out, resp, nil
}
