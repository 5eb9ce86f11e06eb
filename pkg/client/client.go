// Package client implements the session core of the Galynx desktop daemon:
// the process-wide session state, the token lifecycle, the authenticated
// request executor with its retry policy, and the domain endpoint wrappers
// the frontend invokes.
package client

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/galynx/galynx/pkg/bus"
	"github.com/galynx/galynx/pkg/logging"
	"github.com/galynx/galynx/pkg/realtime"
	"github.com/galynx/galynx/pkg/securestore"
)

const (
	// DefaultAPIBase is the compiled-in API base used when neither the
	// environment override nor the persisted value resolves.
	DefaultAPIBase = "http://localhost:3000/api/v1"

	// EnvAPIBase is the environment override consulted at bootstrap only.
	EnvAPIBase = "GALYNX_API_BASE"

	tokenStoreKey   = "auth_tokens"
	apiBaseStoreKey = "api_base"

	defaultHTTPTimeout = 30 * time.Second

	// Proactive limiter in front of every dispatch; stays well under the
	// remote API's documented per-client budget.
	defaultRateLimit = rate.Limit(20)
	defaultBurstSize = 40
)

// Options configures a Client.
type Options struct {
	Store  *securestore.Store
	Bus    bus.Bus
	Logger *logging.Logger

	// HTTPClient overrides the default transport; used by tests.
	HTTPClient *http.Client

	// APIBaseOverride is the raw environment override, if any. An invalid
	// override is logged and ignored, matching bootstrap priority rules.
	APIBaseOverride string
}

// Client is the process-wide session. It is shared by reference across every
// concurrently running request and the realtime task; each mutable field is
// guarded independently so a token refresh never blocks API-base reads.
type Client struct {
	http    *http.Client
	store   *securestore.Store
	bus     bus.Bus
	log     *logging.Logger
	limiter *rate.Limiter

	apiBaseMu sync.RWMutex
	apiBase   string

	tokensMu sync.RWMutex
	tokens   *TokenBundle

	// refreshMu serializes token refresh round-trips. Callers that hit a
	// 401 while a refresh is in flight wait here, then run their own
	// refresh with whatever bundle the winner left behind.
	refreshMu sync.Mutex

	realtimeMu   sync.Mutex
	realtimeLoop *realtime.Loop
}

// New constructs the Client, resolving the API base with bootstrap priority:
// environment override, then persisted value, then the compiled-in default.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	c := &Client{
		http:    httpClient,
		store:   opts.Store,
		bus:     opts.Bus,
		log:     opts.Logger,
		limiter: rate.NewLimiter(defaultRateLimit, defaultBurstSize),
	}
	c.apiBase = c.resolveInitialAPIBase(opts.APIBaseOverride)
	return c
}

func (c *Client) resolveInitialAPIBase(override string) string {
	if override != "" {
		if normalized, err := NormalizeAPIBase(override); err == nil {
			return normalized
		}
		c.log.Warn(logging.CategorySession, "api_base_override_invalid",
			"ignoring invalid API base override", map[string]any{"value": override})
	}

	if c.store != nil {
		if raw, ok := c.store.Get(apiBaseStoreKey); ok {
			var stored string
			if err := json.Unmarshal(raw, &stored); err == nil {
				if normalized, err := NormalizeAPIBase(stored); err == nil {
					return normalized
				}
			}
		}
	}

	return DefaultAPIBase
}

// APIBase returns the current canonical API base.
func (c *Client) APIBase() string {
	c.apiBaseMu.RLock()
	defer c.apiBaseMu.RUnlock()
	return c.apiBase
}

// SetAPIBase normalizes, persists, and swaps in a new API base, returning the
// canonical form.
func (c *Client) SetAPIBase(value string) (string, error) {
	normalized, err := NormalizeAPIBase(value)
	if err != nil {
		return "", invalidResponseError("invalid API base URL", err)
	}

	encoded, _ := json.Marshal(normalized)
	if err := c.persistValue(apiBaseStoreKey, encoded); err != nil {
		return "", err
	}

	c.apiBaseMu.Lock()
	c.apiBase = normalized
	c.apiBaseMu.Unlock()
	return normalized, nil
}

func (c *Client) endpoint(path string) string {
	return c.APIBase() + path
}

// persistValue stages and saves one store key. On save failure the store's
// in-memory view is restored so no partial update is observable.
func (c *Client) persistValue(key string, value json.RawMessage) error {
	if c.store == nil {
		return storageError("secure store unavailable", nil)
	}

	prev, hadPrev := c.store.Get(key)
	c.store.Set(key, value)
	if err := c.store.Save(); err != nil {
		if hadPrev {
			c.store.Set(key, prev)
		} else {
			c.store.Delete(key)
		}
		return storageError("could not save secure store", err)
	}
	return nil
}
