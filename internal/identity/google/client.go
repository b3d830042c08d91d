// Package google verifies Google ID tokens through the tokeninfo endpoint.
package google

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/NordCoder/Tokengate/internal/domain/identity"
	"github.com/NordCoder/Tokengate/internal/obs"
	"github.com/NordCoder/Tokengate/internal/obs/retry"
)

const DefaultEndpoint = "https://oauth2.googleapis.com/tokeninfo"

type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Audience string        `mapstructure:"audience"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Attempts int           `mapstructure:"attempts"`
}

var _ identity.Verifier = (*Client)(nil)

type Client struct {
	c      *http.Client
	cfg    Config
	policy retry.Policy
}

func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return NewWithHTTPClient(cfg, &http.Client{
		Timeout:   cfg.Timeout,
		Transport: obs.HTTPTransport(transport),
	})
}

func NewWithHTTPClient(cfg Config, c *http.Client) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	pol := retry.IdentityPolicy(func(err error) bool { return errors.Is(err, identity.ErrNetwork) })
	if cfg.Attempts > 0 {
		pol.Attempts = cfg.Attempts
	}
	return &Client{c: c, cfg: cfg, policy: pol}
}

type tokenInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Aud   string `json:"aud"`
}

// Verify exchanges an ID token for the identity it asserts. Transport failures
// wrap identity.ErrNetwork and are retried; any answer from Google that is not
// a usable identity wraps identity.ErrRejected.
func (cl *Client) Verify(ctx context.Context, credential string) (*identity.Identity, error) {
	if credential == "" {
		return nil, fmt.Errorf("empty id token: %w", identity.ErrRejected)
	}
	start := time.Now()
	defer func() { obs.IdentityLatency.Observe(time.Since(start).Seconds()) }()

	var out *identity.Identity
	err := retry.Do(ctx, func() error {
		id, err := cl.verifyOnce(ctx, credential)
		out = id
		return err
	}, cl.policy)
	if err != nil {
		// A cancelled or expired request never reached a verdict on the credential.
		if !errors.Is(err, identity.ErrNetwork) &&
			(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil, fmt.Errorf("%w: %w", identity.ErrNetwork, err)
		}
		return nil, err
	}
	return out, nil
}

func (cl *Client) verifyOnce(ctx context.Context, credential string) (*identity.Identity, error) {
	u := cl.cfg.Endpoint + "?" + url.Values{"id_token": {credential}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := cl.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo: %v: %w", err, identity.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("tokeninfo status %d: %w", resp.StatusCode, identity.ErrRejected)
	}
	var ti tokenInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ti); err != nil {
		return nil, fmt.Errorf("tokeninfo body: %v: %w", err, identity.ErrRejected)
	}
	if ti.Sub == "" || ti.Email == "" {
		return nil, fmt.Errorf("missing required claims: %w", identity.ErrRejected)
	}
	if cl.cfg.Audience != "" && ti.Aud != cl.cfg.Audience {
		return nil, fmt.Errorf("audience mismatch: %w", identity.ErrRejected)
	}
	return &identity.Identity{SubjectID: ti.Sub, Email: ti.Email, DisplayName: ti.Name}, nil
}
