package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blocksettle/ledgerbridge/internal/clock"
	"github.com/blocksettle/ledgerbridge/internal/config"
	"github.com/blocksettle/ledgerbridge/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func tokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newSource(srvURL string, clk clock.Clock) *TokenSource {
	return NewTokenSource(config.LedgerConfig{
		TokenURL:     srvURL,
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "refresh-1",
		CallTimeout:  5 * time.Second,
	}, clk, zap.NewNop())
}

func TestToken_RefreshesOnceThenCaches(t *testing.T) {
	calls := 0
	srv := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-2",
			"expires_in":    1800,
		})
	})

	fakeClock := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	source := newSource(srv.URL, fakeClock)

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)

	token, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, 1, calls)

	// Past expiry the next Token call refreshes with the rotated grant.
	fakeClock.Advance(time.Hour)
	_, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestToken_RotatedRefreshTokenIsUsed(t *testing.T) {
	var grants []string
	srv := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grants = append(grants, r.Form.Get("refresh_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access",
			"refresh_token": "refresh-next",
			"expires_in":    1800,
		})
	})

	source := newSource(srv.URL, clock.NewSystemClock())

	require.NoError(t, source.Refresh(context.Background()))
	require.NoError(t, source.Refresh(context.Background()))

	require.Len(t, grants, 2)
	assert.Equal(t, "refresh-1", grants[0])
	assert.Equal(t, "refresh-next", grants[1])
}

func TestRefresh_RejectedGrantFails(t *testing.T) {
	srv := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	})

	source := newSource(srv.URL, clock.NewSystemClock())
	err := source.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrRefreshFailed)
}

func TestRefresh_MissingConfigFails(t *testing.T) {
	source := NewTokenSource(config.LedgerConfig{}, clock.NewSystemClock(), zap.NewNop())
	err := source.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrRefreshFailed)
}
