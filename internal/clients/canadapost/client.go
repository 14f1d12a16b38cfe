package canadapost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/httpx"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

// Client fetches domestic parcel rates from the Canada Post rating API.
// Rates are requested per package and aggregated per service, so a
// multi-box shipment quotes as the sum of its boxes.
type Client interface {
	GetQuotes(ctx context.Context, fromPostal, toPostal string, packages []domain.Package) ([]domain.ServiceQuote, error)
}

// Only the retail parcel services are quoted; everything else the API
// returns (flat rate boxes, library materials) is noise for this flow.
var allowedServices = map[string]struct{}{
	"DOM.RP": {},
	"DOM.EP": {},
	"DOM.XP": {},
	"DOM.PC": {},
}

type Config struct {
	Username   string
	Password   string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		Username:   strings.TrimSpace(os.Getenv("CP_API_USERNAME")),
		Password:   strings.TrimSpace(os.Getenv("CP_API_PASSWORD")),
		BaseURL:    strings.TrimSpace(os.Getenv("CP_BASE_URL")),
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("missing CP_API_USERNAME")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("missing CP_API_PASSWORD")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://soa-gw.canadapost.ca"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &client{
		log:        log.With("client", "CanadaPostClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

// ---------- wire types ----------

const rateNS = "http://www.canadapost.ca/ws/ship/rate-v4"

type mailingScenario struct {
	XMLName xml.Name `xml:"mailing-scenario"`
	XMLNS   string   `xml:"xmlns,attr"`

	QuoteType             string                `xml:"quote-type"`
	ParcelCharacteristics parcelCharacteristics `xml:"parcel-characteristics"`
	OriginPostalCode      string                `xml:"origin-postal-code"`
	Destination           destination           `xml:"destination"`
}

type parcelCharacteristics struct {
	Weight     string     `xml:"weight"`
	Dimensions dimensions `xml:"dimensions"`
}

type dimensions struct {
	Length string `xml:"length"`
	Width  string `xml:"width"`
	Height string `xml:"height"`
}

type destination struct {
	Domestic struct {
		PostalCode string `xml:"postal-code"`
	} `xml:"domestic"`
}

type priceQuotes struct {
	XMLName xml.Name     `xml:"price-quotes"`
	Quotes  []priceQuote `xml:"price-quote"`
}

type priceQuote struct {
	ServiceCode  string `xml:"service-code"`
	ServiceName  string `xml:"service-name"`
	PriceDetails struct {
		Base  float64 `xml:"base"`
		Due   float64 `xml:"due"`
		Taxes struct {
			GST string `xml:"gst"`
			PST string `xml:"pst"`
			HST string `xml:"hst"`
		} `xml:"taxes"`
	} `xml:"price-details"`
	ServiceStandard struct {
		TransitTime  string `xml:"expected-transit-time"`
		DeliveryDate string `xml:"expected-delivery-date"`
	} `xml:"service-standard"`
}

type apiMessages struct {
	XMLName  xml.Name `xml:"messages"`
	Messages []struct {
		Code        string `xml:"code"`
		Description string `xml:"description"`
	} `xml:"message"`
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
	return fmt.Sprintf("canadapost http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// ---------- API ----------

func compactPostal(pc string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(pc), " ", ""))
}

func buildScenarioXML(fromPostal, toPostal string, pkg domain.Package) []byte {
	var sc mailingScenario
	sc.XMLNS = rateNS
	sc.QuoteType = "counter"
	sc.ParcelCharacteristics.Weight = fmt.Sprintf("%.3f", pkg.Weight)
	sc.ParcelCharacteristics.Dimensions = dimensions{
		Length: fmt.Sprintf("%.1f", pkg.Length),
		Width:  fmt.Sprintf("%.1f", pkg.Width),
		Height: fmt.Sprintf("%.1f", pkg.Height),
	}
	sc.OriginPostalCode = compactPostal(fromPostal)
	sc.Destination.Domestic.PostalCode = compactPostal(toPostal)

	out, _ := xml.MarshalIndent(sc, "", "  ")
	return append([]byte(xml.Header), out...)
}

type serviceTotal struct {
	name  string
	base  float64
	taxes float64
	total float64
	eta   string
}

func (c *client) GetQuotes(ctx context.Context, fromPostal, toPostal string, packages []domain.Package) ([]domain.ServiceQuote, error) {
	if len(packages) == 0 {
		return nil, fmt.Errorf("canadapost: packages required")
	}

	totals := map[string]*serviceTotal{}
	var order []string // first-seen service codes, keeps output deterministic

	for i, pkg := range packages {
		quotes, err := c.ratePackage(ctx, fromPostal, toPostal, pkg)
		if err != nil {
			return nil, fmt.Errorf("canadapost rate package %d: %w", i+1, err)
		}
		for _, q := range quotes {
			if _, ok := allowedServices[q.ServiceCode]; !ok {
				continue
			}
			st, ok := totals[q.ServiceCode]
			if !ok {
				st = &serviceTotal{name: q.ServiceName, eta: quoteETA(q)}
				totals[q.ServiceCode] = st
				order = append(order, q.ServiceCode)
			}
			st.base += q.PriceDetails.Base
			st.taxes += taxValue(q.PriceDetails.Taxes.GST) + taxValue(q.PriceDetails.Taxes.PST) + taxValue(q.PriceDetails.Taxes.HST)
			st.total += q.PriceDetails.Due
		}
	}

	out := make([]domain.ServiceQuote, 0, len(order))
	for _, code := range order {
		st := totals[code]
		out = append(out, domain.ServiceQuote{
			Carrier: "Canada Post",
			Name:    st.name,
			Freight: round2(st.base),
			Tax:     round2(st.taxes),
			Total:   round2(st.total),
			ETA:     st.eta,
			Source:  domain.SourceCanadaPost,
		})
	}

	c.log.Debug("rates aggregated", "boxes", len(packages), "services", len(out))
	return out, nil
}

func quoteETA(q priceQuote) string {
	if q.ServiceStandard.DeliveryDate != "" {
		return q.ServiceStandard.DeliveryDate
	}
	if q.ServiceStandard.TransitTime != "" {
		return q.ServiceStandard.TransitTime + " business days"
	}
	return "N/A"
}

// taxValue tolerates empty and attribute-only tax elements.
func taxValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	if v < 0 {
		return -round2(-v)
	}
	return float64(int(v*100+0.5)) / 100
}

func (c *client) ratePackage(ctx context.Context, fromPostal, toPostal string, pkg domain.Package) ([]priceQuote, error) {
	body := buildScenarioXML(fromPostal, toPostal, pkg)

	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		quotes, resp, err := c.rateOnce(ctx, body)
		if err == nil {
			return quotes, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("rate request retrying",
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

func (c *client) rateOnce(ctx context.Context, body []byte) ([]priceQuote, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/rs/ship/price", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password))
	req.Header.Set("Accept", "application/vnd.cpc.ship.rate-v4+xml")
	req.Header.Set("Content-Type", "application/vnd.cpc.ship.rate-v4+xml")
	req.Header.Set("Accept-language", "en-CA")
	req.Header.Set("Authorization", "Basic "+auth)

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
		// Error bodies carry a messages document worth surfacing.
		var msgs apiMessages
		if xml.Unmarshal(raw, &msgs) == nil && len(msgs.Messages) > 0 {
			var parts []string
			for _, m := range msgs.Messages {
				parts = append(parts, fmt.Sprintf("%s: %s", m.Code, m.Description))
			}
			return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: strings.Join(parts, "; ")}
		}
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var pq priceQuotes
	if err := xml.Unmarshal(raw, &pq); err != nil {
		return nil, resp, fmt.Errorf("decode rate response: %w", err)
	}
	return pq.Quotes, resp, nil
}
