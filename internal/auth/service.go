package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"gitea.jw6.us/james/calsync/internal/config"
	httperrors "gitea.jw6.us/james/calsync/internal/http/errors"
	"gitea.jw6.us/james/calsync/internal/http/render"
	"gitea.jw6.us/james/calsync/internal/provider"
	"gitea.jw6.us/james/calsync/internal/store"
)

// Providers resolves a provider tag.
type Providers interface {
	Lookup(tag string) (provider.Provider, error)
}

// Service runs the OAuth authorization code flow against calendar providers and
// hands the resulting tokens to the client.
type Service struct {
	cfg       *config.Config
	providers Providers
	handoffs  store.HandoffRepository
	sealer    *Sealer
	now       func() time.Time
}

func NewService(cfg *config.Config, providers Providers, handoffs store.HandoffRepository) (*Service, error) {
	s := &Service{cfg: cfg, providers: providers, handoffs: handoffs, now: time.Now}
	if cfg.Tokens.Delivery == config.TokenDeliveryHandoff {
		sealer, err := NewSealer(cfg.Tokens.Secret)
		if err != nil {
			return nil, err
		}
		s.sealer = sealer
	}
	return s, nil
}

// BeginAuth redirects the user agent to the provider's consent page. The state
// parameter carries the provider tag back to the callback.
func (s *Service) BeginAuth(source store.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.providers.Lookup(string(source))
		if err != nil {
			httperrors.NotFoundError(w, r, err, err.Error())
			return
		}
		http.Redirect(w, r, p.AuthCodeURL(string(source)), http.StatusFound)
	}
}

// HandleCallback exchanges the authorization code. Apart from a missing code
// every outcome is a redirect to the frontend.
func (s *Service) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tag := q.Get("provider")
	if tag == "" {
		tag = q.Get("state")
	}

	if reason := q.Get("error"); reason != "" {
		if desc := q.Get("error_description"); desc != "" {
			reason += ": " + desc
		}
		s.redirectError(w, r, fmt.Errorf("%s authorization denied: %s", tag, reason))
		return
	}

	code := q.Get("code")
	if code == "" {
		httperrors.BadRequestError(w, r, errors.New("callback without code"), "missing required parameter: code")
		return
	}

	p, err := s.providers.Lookup(tag)
	if err != nil {
		s.redirectError(w, r, err)
		return
	}

	tok, err := p.Exchange(r.Context(), code)
	if err != nil {
		s.redirectError(w, r, err)
		return
	}

	values := url.Values{}
	values.Set("provider", string(p.Name()))
	values.Set("expires_in", strconv.FormatInt(tok.ExpiresIn, 10))
	if s.cfg.Tokens.Delivery == config.TokenDeliveryQuery {
		values.Set("access_token", tok.AccessToken)
		values.Set("refresh_token", tok.RefreshToken)
	} else {
		handoff, err := s.issueHandoff(r.Context(), tok)
		if err != nil {
			s.redirectError(w, r, err)
			return
		}
		values.Set("handoff", handoff)
	}

	httperrors.LogInfo(r, fmt.Sprintf("%s authorization completed", p.Name()))
	http.Redirect(w, r, withQuery(s.cfg.SuccessURL(), values), http.StatusFound)
}

type redeemRequest struct {
	Handoff string `json:"handoff"`
}

// RedeemHandoff trades a one-shot handoff code for the token bundle.
func (s *Service) RedeemHandoff(w http.ResponseWriter, r *http.Request) {
	if s.sealer == nil {
		render.Error(w, http.StatusNotFound, "token handoff is disabled")
		return
	}

	var req redeemRequest
	if err := render.DecodeJSON(w, r, 1<<14, &req); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid JSON body")
		return
	}
	if req.Handoff == "" {
		httperrors.BadRequestError(w, r, errors.New("redeem without handoff"), "missing required parameter: handoff")
		return
	}

	tok, err := s.Redeem(r.Context(), req.Handoff)
	if errors.Is(err, store.ErrNotFound) {
		httperrors.NotFoundError(w, r, err, "handoff not found or expired")
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to redeem handoff")
		return
	}
	render.JSON(w, http.StatusOK, tok)
}

// Redeem consumes a handoff code and returns the sealed token.
func (s *Service) Redeem(ctx context.Context, code string) (*provider.Token, error) {
	if s.sealer == nil {
		return nil, errors.New("token handoff is disabled")
	}
	h, err := s.handoffs.Redeem(ctx, hashHandoffCode(code), s.now())
	if err != nil {
		return nil, err
	}
	plain, err := s.sealer.Open(h.Sealed)
	if err != nil {
		return nil, err
	}
	var tok provider.Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		return nil, fmt.Errorf("decode handoff: %w", err)
	}
	return &tok, nil
}

// PurgeExpired deletes handoffs that were never redeemed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.handoffs.PurgeExpired(ctx, s.now())
}

func (s *Service) issueHandoff(ctx context.Context, tok *provider.Token) (string, error) {
	payload, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return "", err
	}
	code, hash, err := newHandoffCode()
	if err != nil {
		return "", err
	}

	now := s.now()
	err = s.handoffs.Create(ctx, store.Handoff{
		CodeHash:  hash,
		Provider:  tok.Provider,
		Sealed:    sealed,
		ExpiresAt: now.Add(s.cfg.Tokens.HandoffTTL),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *Service) redirectError(w http.ResponseWriter, r *http.Request, err error) {
	httperrors.LogError(r, "oauth callback failed", err)
	values := url.Values{}
	values.Set("error", err.Error())
	http.Redirect(w, r, withQuery(s.cfg.ErrorURL(), values), http.StatusFound)
}

// withQuery merges values into target's query string.
func withQuery(target string, values url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target + "?" + values.Encode()
	}
	q := u.Query()
	for k, vs := range values {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
