package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/ident"
	"presence-tracker-backend/internal/model"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGateway(config.ProviderConfig{
		BaseURL:        server.URL,
		TimeoutSeconds: 5,
	})
}

func TestGateway_ResolveSuccess(t *testing.T) {
	var gotPayload map[string]any
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/resolve", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":0,"data":{"id":777,"status":"online"}}`))
	})

	ent, err := g.Resolve(context.Background(), ident.Identifier{Kind: ident.KindHandle, Value: "alice"})
	require.NoError(t, err)
	assert.EqualValues(t, 777, ent.ID)
	assert.Equal(t, model.StatusOnline, ent.Status)
	assert.Equal(t, "alice", gotPayload["handle"])
}

func TestGateway_ResolveErrorMapping(t *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
	}{
		{"flood control maps to rate-limited", http.StatusTooManyRequests, "", ErrRateLimited},
		{"unknown entity maps to resolution", http.StatusNotFound, "", ErrResolution},
		{"dropped authorization maps to connection", http.StatusUnauthorized, "", ErrConnection},
		{"server failure maps to connection", http.StatusBadGateway, "", ErrConnection},
		{"application-level failure maps to resolution", http.StatusOK, `{"code":12}`, ErrResolution},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				if tc.body != "" {
					w.Write([]byte(tc.body))
				}
			})

			_, err := g.Resolve(context.Background(), ident.Identifier{Kind: ident.KindNumericID, NumericID: 10})
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestGateway_ResolveUnreachableGateway(t *testing.T) {
	server := httptest.NewServer(nil)
	server.Close()
	g := NewGateway(config.ProviderConfig{BaseURL: server.URL, TimeoutSeconds: 1})

	_, err := g.Resolve(context.Background(), ident.Identifier{Kind: ident.KindNumericID, NumericID: 10})
	assert.ErrorIs(t, err, ErrConnection)
}

func TestGateway_IsAuthorized(t *testing.T) {
	t.Run("live session", func(t *testing.T) {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/me", r.URL.Path)
			w.Write([]byte(`{"code":0,"authorized":true}`))
		})
		ok, err := g.IsAuthorized(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejected session is not an error", func(t *testing.T) {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		ok, err := g.IsAuthorized(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, model.StatusOnline, parseStatus("online"))
	assert.Equal(t, model.StatusOffline, parseStatus("offline"))
	assert.Equal(t, model.StatusRecently, parseStatus("recently"))
	assert.Equal(t, model.StatusRecently, parseStatus("recently-seen"))
	assert.Equal(t, model.StatusUnknown, parseStatus("mystery"))
}
