package canadapost

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func TestBuildScenarioXML(t *testing.T) {
	got := string(buildScenarioXML("b2v 1r9", "V6X1Z7", domain.Package{
		Length: 113, Width: 50, Height: 20, Weight: 7,
	}))

	for _, want := range []string{
		`xmlns="http://www.canadapost.ca/ws/ship/rate-v4"`,
		"<quote-type>counter</quote-type>",
		"<weight>7.000</weight>",
		"<length>113.0</length>",
		"<width>50.0</width>",
		"<height>20.0</height>",
		"<origin-postal-code>B2V1R9</origin-postal-code>",
		"<postal-code>V6X1Z7</postal-code>",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("scenario XML missing %q:\n%s", want, got)
		}
	}

	// Element order matters to the rating schema.
	if strings.Index(got, "<parcel-characteristics>") > strings.Index(got, "<origin-postal-code>") {
		t.Fatalf("parcel-characteristics must precede origin-postal-code:\n%s", got)
	}
}

const rateResponseFixture = `<?xml version="1.0" encoding="UTF-8"?>
<price-quotes xmlns="http://www.canadapost.ca/ws/ship/rate-v4">
  <price-quote>
    <service-code>DOM.RP</service-code>
    <service-name>Regular Parcel</service-name>
    <price-details>
      <base>17.44</base>
      <taxes>
        <gst>0.87</gst>
        <pst>0.00</pst>
        <hst></hst>
      </taxes>
      <due>18.31</due>
    </price-details>
    <service-standard>
      <expected-transit-time>7</expected-transit-time>
      <expected-delivery-date>2026-09-10</expected-delivery-date>
    </service-standard>
  </price-quote>
  <price-quote>
    <service-code>DOM.EP</service-code>
    <service-name>Expedited Parcel</service-name>
    <price-details>
      <base>19.20</base>
      <taxes><gst>0.96</gst></taxes>
      <due>20.16</due>
    </price-details>
  </price-quote>
  <price-quote>
    <service-code>DOM.LIB</service-code>
    <service-name>Library Materials</service-name>
    <price-details>
      <base>5.00</base>
      <due>5.25</due>
    </price-details>
  </price-quote>
</price-quotes>`

func TestGetQuotesAggregatesAcrossPackages(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.Header.Get("Content-Type"); got != "application/vnd.cpc.ship.rate-v4+xml" {
			t.Errorf("content type = %q", got)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "apikey" || pass != "apisecret" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		_, _ = w.Write([]byte(rateResponseFixture))
	}))
	defer srv.Close()

	c, err := New(testLogger(t), Config{Username: "apikey", Password: "apisecret", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	quotes, err := c.GetQuotes(context.Background(), "B2V1R9", "M5V2T6", []domain.Package{
		{Length: 30, Width: 20, Height: 10, Weight: 2},
		{Length: 40, Width: 30, Height: 20, Weight: 5},
	})
	if err != nil {
		t.Fatalf("GetQuotes: %v", err)
	}

	if requests != 2 {
		t.Fatalf("expected one request per package, got %d", requests)
	}
	if len(quotes) != 2 {
		t.Fatalf("library service should be filtered, got %d quotes: %+v", len(quotes), quotes)
	}

	byName := map[string]domain.ServiceQuote{}
	for _, q := range quotes {
		if q.Carrier != "Canada Post" || q.Source != domain.SourceCanadaPost {
			t.Fatalf("quote identity wrong: %+v", q)
		}
		byName[q.Name] = q
	}

	rp, ok := byName["Regular Parcel"]
	if !ok {
		t.Fatalf("missing Regular Parcel: %+v", quotes)
	}
	// Two boxes, both quoted from the same fixture.
	if math.Abs(rp.Total-36.62) > 0.005 {
		t.Fatalf("RP total = %.2f, want 36.62", rp.Total)
	}
	if math.Abs(rp.Freight-34.88) > 0.005 {
		t.Fatalf("RP freight = %.2f, want 34.88", rp.Freight)
	}
	if math.Abs(rp.Tax-1.74) > 0.005 {
		t.Fatalf("RP tax = %.2f, want 1.74", rp.Tax)
	}
	if rp.ETA != "2026-09-10" {
		t.Fatalf("RP eta = %q", rp.ETA)
	}
}

func TestGetQuotesKeepsResponseOrder(t *testing.T) {
	// Four allowed services with identical totals. A later stable sort can
	// only preserve ties if this capability emits a deterministic order, so
	// the output must follow the response document order on every call.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<price-quotes xmlns="http://www.canadapost.ca/ws/ship/rate-v4">
  <price-quote>
    <service-code>DOM.RP</service-code><service-name>Regular Parcel</service-name>
    <price-details><base>10.00</base><due>10.50</due></price-details>
  </price-quote>
  <price-quote>
    <service-code>DOM.EP</service-code><service-name>Expedited Parcel</service-name>
    <price-details><base>10.00</base><due>10.50</due></price-details>
  </price-quote>
  <price-quote>
    <service-code>DOM.XP</service-code><service-name>Xpresspost</service-name>
    <price-details><base>10.00</base><due>10.50</due></price-details>
  </price-quote>
  <price-quote>
    <service-code>DOM.PC</service-code><service-name>Priority</service-name>
    <price-details><base>10.00</base><due>10.50</due></price-details>
  </price-quote>
</price-quotes>`))
	}))
	defer srv.Close()

	c, err := New(testLogger(t), Config{Username: "apikey", Password: "apisecret", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{"Regular Parcel", "Expedited Parcel", "Xpresspost", "Priority"}
	for i := 0; i < 50; i++ {
		quotes, err := c.GetQuotes(context.Background(), "B2V1R9", "M5V2T6", []domain.Package{
			{Length: 30, Width: 20, Height: 10, Weight: 2},
		})
		if err != nil {
			t.Fatalf("GetQuotes: %v", err)
		}
		if len(quotes) != len(want) {
			t.Fatalf("got %d quotes, want %d", len(quotes), len(want))
		}
		for j, q := range quotes {
			if q.Name != want[j] {
				t.Fatalf("call %d: quote %d = %q, want %q", i, j, q.Name, want[j])
			}
		}
	}
}

func TestGetQuotesSurfacesAPIMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<?xml version="1.0"?>
<messages xmlns="http://www.canadapost.ca/ws/messages">
  <message><code>AA004</code><description>Destination Postal Code is invalid</description></message>
</messages>`))
	}))
	defer srv.Close()

	c, err := New(testLogger(t), Config{Username: "apikey", Password: "apisecret", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.GetQuotes(context.Background(), "B2V1R9", "XXXXXX", []domain.Package{{Length: 1, Width: 1, Height: 1, Weight: 1}})
	if err == nil || !strings.Contains(err.Error(), "AA004") {
		t.Fatalf("expected message code in error, got %v", err)
	}
}
