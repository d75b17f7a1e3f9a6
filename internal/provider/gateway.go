package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/ident"
	"presence-tracker-backend/internal/model"
)

// Gateway is a Client speaking JSON over HTTP to a presence gateway
// sidecar. The gateway owns the actual provider protocol and credentials;
// this adapter only maps lookups and failures onto the engine's error
// kinds. Every call carries the configured per-call timeout so a hanging
// provider cannot stall a batch indefinitely.
type Gateway struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewGateway creates a gateway adapter from configuration.
func NewGateway(cfg config.ProviderConfig) *Gateway {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Provider gateway will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Gateway{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Connect verifies the gateway is reachable. The underlying HTTP client is
// stateless, so connecting is a health probe rather than a handshake.
func (g *Gateway) Connect(ctx context.Context) error {
	if _, err := g.IsAuthorized(ctx); err != nil {
		return err
	}
	return nil
}

// Disconnect drops pooled connections.
func (g *Gateway) Disconnect() error {
	g.client.CloseIdleConnections()
	return nil
}

type authResponse struct {
	Code       int  `json:"code"`
	Authorized bool `json:"authorized"`
}

// IsAuthorized asks the gateway whether its provider session is live.
func (g *Gateway) IsAuthorized(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/me", nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("%w: gateway returned status %d", ErrConnection, resp.StatusCode)
	}

	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return false, fmt.Errorf("%w: decoding auth response: %v", ErrConnection, err)
	}
	return ar.Authorized, nil
}

type resolveResponse struct {
	Code int `json:"code"`
	Data struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// Resolve looks one identifier up and returns the entity's presence.
func (g *Gateway) Resolve(ctx context.Context, id ident.Identifier) (Entity, error) {
	payload := make(map[string]any, 1)
	switch id.Kind {
	case ident.KindNumericID:
		payload["numeric_id"] = id.NumericID
	case ident.KindPhone:
		payload["phone"] = id.Value
	case ident.KindHandle:
		payload["handle"] = id.Value
	default:
		return Entity{}, fmt.Errorf("%w: unsupported identifier kind %v", ErrResolution, id.Kind)
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return Entity{}, fmt.Errorf("%w: marshaling lookup payload: %v", ErrResolution, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/resolve", bytes.NewBuffer(jsonBody))
	if err != nil {
		return Entity{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return Entity{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return Entity{}, fmt.Errorf("%w: gateway flood control on %s lookup", ErrRateLimited, id.Kind)
	case http.StatusNotFound:
		return Entity{}, fmt.Errorf("%w: %s %q is unknown to the provider", ErrResolution, id.Kind, id.Value)
	case http.StatusUnauthorized, http.StatusForbidden:
		return Entity{}, fmt.Errorf("%w: gateway session no longer authorized", ErrConnection)
	default:
		return Entity{}, fmt.Errorf("%w: gateway returned status %d", ErrConnection, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entity{}, fmt.Errorf("%w: reading gateway response: %v", ErrConnection, err)
	}

	var rr resolveResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return Entity{}, fmt.Errorf("%w: decoding gateway response: %v", ErrConnection, err)
	}
	if rr.Code != 0 {
		return Entity{}, fmt.Errorf("%w: gateway application code %d", ErrResolution, rr.Code)
	}

	return Entity{ID: rr.Data.ID, Status: parseStatus(rr.Data.Status)}, nil
}

func (g *Gateway) setHeaders(req *http.Request) {
	for key, value := range g.cfg.Headers {
		req.Header.Set(key, value)
	}
}

// parseStatus maps gateway status strings onto the engine's status domain.
// Anything unrecognized is treated as unknown rather than rejected.
func parseStatus(s string) model.Status {
	switch s {
	case "online":
		return model.StatusOnline
	case "offline":
		return model.StatusOffline
	case "recently", "recently-seen":
		return model.StatusRecently
	default:
		return model.StatusUnknown
	}
}
