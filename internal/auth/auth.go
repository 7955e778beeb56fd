// Package auth resolves bearer tokens to owner ids.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/cache"
	"github.com/sells-group/leadgen-cli/internal/config"
)

// ErrUnauthorized means the token is missing, malformed or rejected.
var ErrUnauthorized = eris.New("auth: unauthorized")

// Verifier maps a bearer token to the owner it identifies.
type Verifier interface {
	Verify(ctx context.Context, token string) (ownerID string, err error)
}

// HTTPVerifier asks the identity provider's user endpoint who a token
// belongs to and caches the answer.
type HTTPVerifier struct {
	userInfoURL string
	apiKey      string
	http        *http.Client
	cache       cache.Cache
	ttl         time.Duration
}

// Option configures an HTTPVerifier.
type Option func(*HTTPVerifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *HTTPVerifier) { v.http = c }
}

// WithCache caches verified tokens for ttl. A zero ttl disables caching.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(v *HTTPVerifier) {
		v.cache = c
		v.ttl = ttl
	}
}

// NewHTTPVerifier creates a verifier against userInfoURL. apiKey, when set,
// is sent as the apikey header.
func NewHTTPVerifier(userInfoURL, apiKey string, opts ...Option) *HTTPVerifier {
	v := &HTTPVerifier{
		userInfoURL: userInfoURL,
		apiKey:      apiKey,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

type userInfo struct {
	ID  string `json:"id"`
	Sub string `json:"sub"`
}

// Verify implements Verifier.
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	key := cacheKey(token)
	if v.cache != nil && v.ttl > 0 {
		owner, ok, err := v.cache.Get(ctx, key)
		if err != nil {
			zap.L().Warn("auth: cache read failed", zap.Error(err))
		} else if ok && len(owner) > 0 {
			return string(owner), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "auth: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "auth: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", eris.Errorf("auth: identity provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", eris.Wrap(err, "auth: decode user info")
	}
	owner := info.ID
	if owner == "" {
		owner = info.Sub
	}
	if owner == "" {
		return "", ErrUnauthorized
	}

	if v.cache != nil && v.ttl > 0 {
		if err := v.cache.Set(ctx, key, []byte(owner), v.ttl); err != nil {
			zap.L().Warn("auth: cache write failed", zap.Error(err))
		}
	}
	return owner, nil
}

// cacheKey keeps raw tokens out of the cache.
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "auth:" + hex.EncodeToString(sum[:])
}

// StaticVerifier resolves tokens from a fixed table. Used for local
// development and tests.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier returns a verifier over token → owner pairs.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &StaticVerifier{tokens: cp}
}

// Verify implements Verifier. Comparison is constant time per entry.
func (s *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	for t, owner := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return owner, nil
		}
	}
	return "", ErrUnauthorized
}

// FromConfig builds the verifier selected by cfg.Mode.
func FromConfig(cfg config.AuthConfig, c cache.Cache) (Verifier, error) {
	switch cfg.Mode {
	case "static":
		return NewStaticVerifier(cfg.StaticTokens), nil
	case "http", "":
		if cfg.UserInfoURL == "" {
			return nil, eris.New("auth: user_info_url is required")
		}
		ttl := time.Duration(cfg.CacheTTLSecs) * time.Second
		return NewHTTPVerifier(cfg.UserInfoURL, cfg.APIKey, WithCache(c, ttl)), nil
	default:
		return nil, eris.Errorf("auth: unknown mode %q", cfg.Mode)
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
