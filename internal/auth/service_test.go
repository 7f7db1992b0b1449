package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/robfig/cron/v3"

	"gitea.jw6.us/james/calsync/internal/config"
	"gitea.jw6.us/james/calsync/internal/provider"
	"gitea.jw6.us/james/calsync/internal/store"
)

type fakeProvider struct {
	source  store.Source
	token   *provider.Token
	err     error
	gotCode string
}

func (f *fakeProvider) Name() store.Source { return f.source }
func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://auth.example.com/authorize?state=" + url.QueryEscape(state)
}
func (f *fakeProvider) Exchange(ctx context.Context, code string) (*provider.Token, error) {
	f.gotCode = code
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}
func (f *fakeProvider) FetchEvents(ctx context.Context, accessToken string) ([]provider.RawEvent, error) {
	return nil, nil
}
func (f *fakeProvider) Normalize(raw provider.RawEvent) (store.Event, error) {
	return store.Event{}, nil
}

type fakeHandoffs struct {
	mu   sync.Mutex
	rows map[string]store.Handoff
}

func newFakeHandoffs() *fakeHandoffs { return &fakeHandoffs{rows: map[string]store.Handoff{}} }

func (f *fakeHandoffs) Create(ctx context.Context, h store.Handoff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[h.CodeHash] = h
	return nil
}

func (f *fakeHandoffs) Redeem(ctx context.Context, codeHash string, now time.Time) (*store.Handoff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.rows[codeHash]
	if !ok || !h.ExpiresAt.After(now) {
		return nil, store.ErrNotFound
	}
	delete(f.rows, codeHash)
	return &h, nil
}

func (f *fakeHandoffs) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, h := range f.rows {
		if !h.ExpiresAt.After(now) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func testConfig(delivery string) *config.Config {
	cfg := &config.Config{
		SiteURL:     "https://app.example.com",
		SuccessPath: "/sync-success",
		ErrorPath:   "/sync-error",
	}
	cfg.Tokens.Delivery = delivery
	cfg.Tokens.Secret = testSecret
	cfg.Tokens.HandoffTTL = 5 * time.Minute
	return cfg
}

type fixture struct {
	svc      *Service
	google   *fakeProvider
	handoffs *fakeHandoffs
	now      time.Time
}

func newFixture(t *testing.T, delivery string) *fixture {
	t.Helper()
	f := &fixture{
		google: &fakeProvider{
			source: store.SourceGoogle,
			token:  &provider.Token{Provider: store.SourceGoogle, AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3599},
		},
		handoffs: newFakeHandoffs(),
		now:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	registry := provider.NewRegistry(f.google, &fakeProvider{source: store.SourceOutlook})
	svc, err := NewService(testConfig(delivery), registry, f.handoffs)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.now = func() time.Time { return f.now }
	f.svc = svc
	return f
}

func callback(t *testing.T, svc *Service, query string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	svc.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/callback?"+query, nil))
	return rec
}

func redirectTarget(t *testing.T, rec *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 (body %q)", rec.Code, rec.Body.String())
	}
	u, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad Location: %v", err)
	}
	return u
}

func TestBeginAuthRedirects(t *testing.T) {
	f := newFixture(t, config.TokenDeliveryHandoff)
	rec := httptest.NewRecorder()
	f.svc.BeginAuth(store.SourceGoogle)(rec, httptest.NewRequest(http.MethodGet, "/google-auth", nil))

	u := redirectTarget(t, rec)
	if u.Host != "auth.example.com" || u.Query().Get("state") != "google" {
		t.Fatalf("unexpected redirect %s", u)
	}
}

func TestBeginAuthUnknownProvider(t *testing.T) {
	f := newFixture(t, config.TokenDeliveryHandoff)
	rec := httptest.NewRecorder()
	f.svc.BeginAuth("yahoo")(rec, httptest.NewRequest(http.MethodGet, "/yahoo-auth", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCallbackMissingCode(t *testing.T) {
	f := newFixture(t, config.TokenDeliveryHandoff)
	rec := callback(t, f.svc, "provider=google")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "code") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestCallbackFailuresRedirectToErrorPage(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		exchErr error
		want    string
	}{
		{name: "consent denied", query: "state=google&error=access_denied", want: "access_denied"},
		{name: "unknown provider", query: "provider=yahoo&code=abc", want: "no handler found"},
		{name: "exchange failed", query: "provider=google&code=abc", exchErr: errors.New("invalid_grant"), want: "invalid_grant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, config.TokenDeliveryHandoff)
			f.google.err = tt.exchErr

			u := redirectTarget(t, callback(t, f.svc, tt.query))
			if u.Host != "app.example.com" || u.Path != "/sync-error" {
				t.Fatalf("redirected to %s", u)
			}
			if msg := u.Query().Get("error"); !strings.Contains(msg, tt.want) {
				t.Fatalf("error = %q, want it to contain %q", msg, tt.want)
			}
			if len(f.handoffs.rows) != 0 {
				t.Fatal("no handoff may be issued on failure")
			}
		})
	}
}

func TestCallbackHandoffFlow(t *testing.T) {
	f := newFixture(t, config.TokenDeliveryHandoff)

	u := redirectTarget(t, callback(t, f.svc, "state=google&code=abc"))
	if u.Path != "/sync-success" {
		t.Fatalf("redirected to %s", u)
	}
	q := u.Query()
	if q.Get("access_token") != "" || q.Get("refresh_token") != "" {
		t.Fatalf("tokens leaked into redirect: %s", u)
	}
	if q.Get("provider") != "google" || q.Get("expires_in") != "3599" {
		t.Fatalf("unexpected query %v", q)
	}
	if f.google.gotCode != "abc" {
		t.Fatalf("exchanged code = %q", f.google.gotCode)
	}
	code := q.Get("handoff")
	if code == "" {
		t.Fatal("missing handoff code")
	}
	for hash, h := range f.handoffs.rows {
		if hash == code || strings.Contains(string(h.Sealed), "access_token") {
			t.Fatal("handoff row must store only the hash and sealed tokens")
		}
	}

	redeem := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		body := strings.NewReader(`{"handoff":"` + code + `"}`)
		f.svc.RedeemHandoff(rec, httptest.NewRequest(http.MethodPost, "/token", body))
		return rec
	}

	rec := redeem()
	if rec.Code != http.StatusOK {
		t.Fatalf("redeem status = %d (%s)", rec.Code, rec.Body.String())
	}
	var tok provider.Token
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" || tok.ExpiresIn != 3599 || tok.Provider != store.SourceGoogle {
		t.Fatalf("unexpected token %+v", tok)
	}

	if rec := redeem(); rec.Code != http.StatusNotFound {
		t.Fatalf("second redeem status = %d, want 404", rec.Code)
	}
}

func TestRedeemExpiredHandoff(t *testing.T) {
	f := newFixture(t, config.TokenDeliveryHandoff)
	code := redirectTarget(t, callback(t, f.svc, "provider=google&code=abc")).Query().Get("handoff")

	f.now = f.now.Add(6 * time.Minute)
	if _, err := f.svc.Redeem(context.Background(), code); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedeemHandoffBadRequests(t *testing.T) {
	f := newFixture(t, config.TokenDeliveryHandoff)
	for _, body := range []string{`{`, `{}`, `{"handoff":""}`} {
		rec := httptest.NewRecorder()
		f.svc.RedeemHandoff(rec, httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", body, rec.Code)
		}
	}
}

func TestCallbackQueryDelivery(t *testing.T) {
	f := newFixture(t, config.TokenDeliveryQuery)

	q := redirectTarget(t, callback(t, f.svc, "provider=google&code=abc")).Query()
	if q.Get("access_token") != "at" || q.Get("refresh_token") != "rt" || q.Get("expires_in") != "3599" {
		t.Fatalf("unexpected query %v", q)
	}
	if len(f.handoffs.rows) != 0 {
		t.Fatal("query delivery must not create handoffs")
	}

	rec := httptest.NewRecorder()
	f.svc.RedeemHandoff(rec, httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"handoff":"x"}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("redeem in query mode: status = %d", rec.Code)
	}
}

func TestSchedulePurge(t *testing.T) {
	f := newFixture(t, config.TokenDeliveryHandoff)
	callback(t, f.svc, "provider=google&code=abc")
	callback(t, f.svc, "provider=google&code=def")

	c := cron.New()
	if _, err := f.svc.SchedulePurge(c, "@every 5m"); err != nil {
		t.Fatalf("SchedulePurge() error = %v", err)
	}
	if _, err := f.svc.SchedulePurge(c, "not a schedule"); err == nil {
		t.Fatal("expected invalid schedule error")
	}

	f.now = f.now.Add(10 * time.Minute)
	n, err := f.svc.PurgeExpired(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("PurgeExpired() = %d, %v", n, err)
	}
}

func TestWithQuery(t *testing.T) {
	got := withQuery("https://app.example.com/done?tab=cal", url.Values{"provider": {"google"}})
	u, _ := url.Parse(got)
	if u.Query().Get("tab") != "cal" || u.Query().Get("provider") != "google" {
		t.Fatalf("withQuery() = %s", got)
	}
}
