package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietanh/walletledger/internal/core/domain"
)

// DefaultSheetTTL bounds staleness for cached sheet snapshots. Writers
// invalidate eagerly, so the TTL is a backstop, not the freshness source.
const DefaultSheetTTL = 5 * time.Minute

// SheetCache stores balance-sheet snapshots as JSON under a
// sheet:{owner}:{address}:{network} key. The owner component keeps two
// owners tracking the same address from serving each other's sheets.
// All failures degrade to a cache miss with a warning; the ledger never
// fails on cache errors.
type SheetCache struct {
	client *Client
	ttl    time.Duration
}

// NewSheetCache creates a sheet cache over an existing client. ttl <= 0
// selects DefaultSheetTTL.
func NewSheetCache(client *Client, ttl time.Duration) *SheetCache {
	if ttl <= 0 {
		ttl = DefaultSheetTTL
	}
	return &SheetCache{client: client, ttl: ttl}
}

func sheetKey(ownerID, address string, network domain.Network) string {
	return fmt.Sprintf("sheet:%s:%s:%s", ownerID, address, network)
}

// Get returns the cached sheet, if any.
func (c *SheetCache) Get(ctx context.Context, ownerID, address string, network domain.Network) (*domain.BalanceSheet, bool) {
	data, err := c.client.rdb.Get(ctx, sheetKey(ownerID, address, network)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("Sheet cache read failed", "address", address, "network", network, "error", err)
		return nil, false
	}
	var sheet domain.BalanceSheet
	if err := json.Unmarshal(data, &sheet); err != nil {
		slog.Warn("Sheet cache entry corrupt, dropping", "address", address, "network", network, "error", err)
		c.Invalidate(ctx, ownerID, address, network)
		return nil, false
	}
	return &sheet, true
}

// Set caches a sheet snapshot.
func (c *SheetCache) Set(ctx context.Context, ownerID, address string, network domain.Network, sheet *domain.BalanceSheet) {
	data, err := json.Marshal(sheet)
	if err != nil {
		slog.Warn("Sheet cache encode failed", "address", address, "network", network, "error", err)
		return
	}
	if err := c.client.rdb.Set(ctx, sheetKey(ownerID, address, network), data, c.ttl).Err(); err != nil {
		slog.Warn("Sheet cache write failed", "address", address, "network", network, "error", err)
	}
}

// Invalidate drops the cached snapshot.
func (c *SheetCache) Invalidate(ctx context.Context, ownerID, address string, network domain.Network) {
	if err := c.client.rdb.Del(ctx, sheetKey(ownerID, address, network)).Err(); err != nil {
		slog.Warn("Sheet cache invalidate failed", "address", address, "network", network, "error", err)
	}
}
