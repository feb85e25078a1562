// internal/ice/provider.go
package ice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const cacheKey = "ice:servers"

// Server is one STUN/TURN endpoint, shaped like an RTCIceServer entry.
type Server struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// fallbackServers is returned when the credential provider is unconfigured
// or unreachable. Public STUN still lets most peers connect directly.
var fallbackServers = []Server{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// Provider fetches short-lived TURN credentials from a Xirsys-style channel
// endpoint and caches them for their lifetime, in Redis when available and
// in-process otherwise. Servers never fails; it degrades to the static STUN
// list.
type Provider struct {
	url    string
	ident  string
	secret string
	ttl    time.Duration

	httpClient *http.Client
	rdb        *redis.Client
	logger     *logrus.Logger
	now        func() time.Time

	mu       sync.Mutex
	cached   []Server
	cachedAt time.Time
}

func NewProvider(url, ident, secret string, ttl time.Duration, rdb *redis.Client, logger *logrus.Logger) *Provider {
	return &Provider{
		url:        url,
		ident:      ident,
		secret:     secret,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		rdb:        rdb,
		logger:     logger,
		now:        time.Now,
	}
}

// Configured reports whether a credential endpoint is set up.
func (p *Provider) Configured() bool {
	return p.url != ""
}

// Servers returns the current ICE server list.
func (p *Provider) Servers(ctx context.Context) []Server {
	if !p.Configured() {
		return fallbackServers
	}

	if servers := p.fromCache(ctx); servers != nil {
		return servers
	}

	servers, err := p.fetch(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("ICE credential fetch failed, using static STUN list")
		return fallbackServers
	}
	p.storeCache(ctx, servers)
	return servers
}

func (p *Provider) fromCache(ctx context.Context) []Server {
	if p.rdb != nil {
		data, err := p.rdb.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var servers []Server
			if json.Unmarshal(data, &servers) == nil && len(servers) > 0 {
				return servers
			}
		} else if err != redis.Nil {
			p.logger.WithError(err).Debug("redis ICE cache read failed")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && p.now().Sub(p.cachedAt) < p.ttl {
		return p.cached
	}
	return nil
}

func (p *Provider) storeCache(ctx context.Context, servers []Server) {
	p.mu.Lock()
	p.cached = servers
	p.cachedAt = p.now()
	p.mu.Unlock()

	if p.rdb == nil {
		return
	}
	data, err := json.Marshal(servers)
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, cacheKey, data, p.ttl).Err(); err != nil {
		p.logger.WithError(err).Debug("redis ICE cache write failed")
	}
}

// fetch pulls fresh credentials. Xirsys answers a PUT on the channel URL
// with {"v": {"iceServers": ...}, "s": "ok"} where iceServers is either a
// single object or a list.
func (p *Provider) fetch(ctx context.Context) ([]Server, error) {
	body := strings.NewReader(`{"format": "urls"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.ident, p.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ICE provider returned status %d", resp.StatusCode)
	}

	var payload struct {
		V struct {
			IceServers json.RawMessage `json:"iceServers"`
		} `json:"v"`
		S string `json:"s"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.S != "ok" {
		return nil, fmt.Errorf("ICE provider status %q", payload.S)
	}

	servers, err := parseServers(payload.V.IceServers)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("ICE provider returned no servers")
	}
	return servers, nil
}

func parseServers(raw json.RawMessage) ([]Server, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []Server
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single Server
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("unexpected iceServers payload: %w", err)
	}
	return []Server{single}, nil
}
