package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// cacheKey hashes the normalized query and region.
func cacheKey(query, region string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " ")) + "|" + strings.ToLower(region)
	h := sha256.Sum256([]byte(normalized))
	return "geocode:" + hex.EncodeToString(h[:])
}

// checkCache returns a cached result. Cache errors are logged and treated
// as misses.
func (g *geocoder) checkCache(ctx context.Context, key string) (*Result, bool) {
	if g.cache == nil {
		return nil, false
	}
	data, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("geocode: cache get failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		zap.L().Warn("geocode: cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	zap.L().Debug("geocode cache hit", zap.String("key", key[:20]), zap.Bool("matched", r.Matched))
	return &r, true
}

func (g *geocoder) storeCache(ctx context.Context, key string, r *Result) {
	if g.cache == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, key, data, g.cacheTTL); err != nil {
		zap.L().Warn("geocode: cache set failed", zap.Error(err))
	}
}
