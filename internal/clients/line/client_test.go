package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
	"github.com/mapleroute/quotebot-backend/internal/services"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func TestVerifySignature(t *testing.T) {
	secret := "channel-secret"
	body := []byte(`{"events":[]}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	good := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !VerifySignature(secret, body, good) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(secret, body, "bogus") {
		t.Fatal("invalid signature accepted")
	}
	if VerifySignature(secret, []byte("tampered"), good) {
		t.Fatal("tampered body accepted")
	}
	if VerifySignature("", body, good) {
		t.Fatal("empty secret must not verify")
	}
}

func TestShortETA(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "N/A"},
		{"N/A", "N/A"},
		{"2026-09-10", "09-10"},
		{"Not Guaranteed", "Not Guaranteed"},
		{"a very long delivery estimate string", "a very long deli"},
	}
	for _, tc := range cases {
		if got := shortETA(tc.in); got != tc.want {
			t.Fatalf("shortETA(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPushTextSendsAuthorizedRequest(t *testing.T) {
	var captured struct {
		To       string `json:"to"`
		Messages []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/push" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(testLogger(t), Config{ChannelToken: "tok", ChannelSecret: "sec", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.PushText(context.Background(), "U123", "hello"); err != nil {
		t.Fatalf("PushText: %v", err)
	}
	if captured.To != "U123" || len(captured.Messages) != 1 ||
		captured.Messages[0].Type != "text" || captured.Messages[0].Text != "hello" {
		t.Fatalf("push payload wrong: %+v", captured)
	}
}

func TestBuildConfirmFlexCoversPackagesAndPostal(t *testing.T) {
	parsed := domain.ParsedInput{
		Packages: []domain.Package{
			{Length: 113, Width: 50, Height: 20, Weight: 7},
			{Length: 80, Width: 40, Height: 30, Weight: 5},
		},
		PostalCodes: []string{"B2V1R9", "M5V2T6"},
	}

	bubble := buildConfirmFlex(parsed)
	raw, err := json.Marshal(bubble)
	if err != nil {
		t.Fatalf("flex must serialize: %v", err)
	}
	s := string(raw)

	for _, want := range []string{
		"Box 1", "Box 2",
		"113 × 50 × 20 cm",
		"B2V 1R9 → M5V 2T6",
		services.CmdConfirm, services.CmdReject, services.CmdRetry,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("confirm flex missing %q:\n%s", want, s)
		}
	}
}

func TestBuildComparisonFlexMarksBestAndWarn(t *testing.T) {
	rows := []services.ComparisonRow{
		{Quote: domain.ServiceQuote{Carrier: "UPS", Name: "UPS Standard", Total: 42.10, Freight: 35.20}, Selected: true},
		{Quote: domain.ServiceQuote{Carrier: "FedEx", Name: "FEDEX_EXPRESS_SAVER", Total: 61.30, Freight: 52.00}, Warn: true},
	}

	raw, err := json.Marshal(buildComparisonFlex(rows))
	if err != nil {
		t.Fatalf("flex must serialize: %v", err)
	}
	s := string(raw)

	for _, want := range []string{"Cheapest", "Selected", "⚠️ FedEx - FEDEX_EXPRESS_SAVER", "$42.10"} {
		if !strings.Contains(s, want) {
			t.Fatalf("comparison flex missing %q:\n%s", want, s)
		}
	}
}

