package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	"github.com/blocksettle/ledgerbridge/internal/ledger/domain"
	"go.uber.org/zap"
)

// TokenSource exchanges a long-lived refresh token for short-lived access
// tokens against a standard OAuth2 token endpoint.
type TokenSource struct {
	log          *zap.Logger
	clock        clock.Clock
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string

	mu           sync.Mutex
	refreshToken string
	accessToken  string
	expiresAt    time.Time
}

func NewTokenSource(cfg config.LedgerConfig, clk clock.Clock, log *zap.Logger) *TokenSource {
	return &TokenSource{
		log:          log.Named("ledger.oauth"),
		clock:        clk,
		httpClient:   &http.Client{Timeout: cfg.CallTimeout},
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
	}
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken != "" && s.clock.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

func (s *TokenSource) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	return s.refreshLocked(ctx)
}

func (s *TokenSource) refreshLocked(ctx context.Context) error {
	if s.tokenURL == "" || s.refreshToken == "" {
		return domain.ErrRefreshFailed
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", s.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.clientID, s.clientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Error("token refresh rejected", zap.Int("status", resp.StatusCode))
		return domain.ErrRefreshFailed
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return domain.ErrRefreshFailed
	}

	s.accessToken = body.AccessToken
	if body.RefreshToken != "" {
		// Xero and QuickBooks both rotate the refresh token on use.
		s.refreshToken = body.RefreshToken
	}
	expiresIn := body.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 1800
	}
	// Renew a minute early so in-flight calls never ride an expiring token.
	s.expiresAt = s.clock.Now().Add(time.Duration(expiresIn-60) * time.Second)
	s.log.Info("access token refreshed", zap.Time("expires_at", s.expiresAt))
	return nil
}
