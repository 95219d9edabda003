package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/tropicaldog17/networth/internal/logger"
	"github.com/tropicaldog17/networth/internal/models"
)

// DefaultStaleTTL is how long the stale shadow of a quote survives.
const DefaultStaleTTL = 24 * time.Hour

// cachedQuote is the wire form of a Quote. Decimals travel as strings so no
// precision is lost in the shared store.
type cachedQuote struct {
	Symbol           string    `msgpack:"s"`
	Price            string    `msgpack:"p"`
	Currency         string    `msgpack:"c"`
	Timestamp        time.Time `msgpack:"t"`
	Change24h        *string   `msgpack:"ch,omitempty"`
	ChangePercent24h *string   `msgpack:"cp,omitempty"`
	Source           string    `msgpack:"src"`
}

// QuoteCache is a best-effort two-tier cache of quotes keyed by (provider, symbol).
// Every fresh write also writes a long-lived stale copy that GetStale can read
// after the fresh entry expired. No method returns an error: a failing shared
// store degrades to the in-process store, and unreadable entries read as misses.
type QuoteCache struct {
	shared   Store
	local    *MemoryStore
	staleTTL time.Duration
	logger   *zap.Logger
}

// NewQuoteCache builds a cache over shared (nil means in-process only) with
// local as the fallback store (nil creates one).
func NewQuoteCache(shared Store, local *MemoryStore, staleTTL time.Duration, log *zap.Logger) *QuoteCache {
	if local == nil {
		local = NewMemoryStore()
	}
	if staleTTL <= 0 {
		staleTTL = DefaultStaleTTL
	}
	return &QuoteCache{shared: shared, local: local, staleTTL: staleTTL, logger: logger.OrNop(log)}
}

// FreshKey is the key of the fresh tier, e.g. "price:coingecko:BTC".
func FreshKey(provider, symbol string) string {
	return "price:" + provider + ":" + strings.ToUpper(symbol)
}

// StaleKey is the key of the stale tier, e.g. "price:stale:coingecko:BTC".
func StaleKey(provider, symbol string) string {
	return "price:stale:" + provider + ":" + strings.ToUpper(symbol)
}

func (c *QuoteCache) Get(ctx context.Context, provider, symbol string) (*models.Quote, bool) {
	return c.read(ctx, FreshKey(provider, symbol))
}

func (c *QuoteCache) GetStale(ctx context.Context, provider, symbol string) (*models.Quote, bool) {
	return c.read(ctx, StaleKey(provider, symbol))
}

// Set stores q in the fresh tier for ttl and in the stale tier for the stale TTL.
func (c *QuoteCache) Set(ctx context.Context, provider, symbol string, q *models.Quote, ttl time.Duration) {
	if q == nil {
		return
	}
	payload, err := msgpack.Marshal(encodeQuote(q))
	if err != nil {
		c.logger.Warn("failed to encode quote for cache", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	c.write(ctx, FreshKey(provider, symbol), payload, ttl)
	c.write(ctx, StaleKey(provider, symbol), payload, c.staleTTL)
}

// Delete removes both tiers.
func (c *QuoteCache) Delete(ctx context.Context, provider, symbol string) {
	for _, key := range []string{FreshKey(provider, symbol), StaleKey(provider, symbol)} {
		if c.shared != nil {
			if err := c.shared.Delete(ctx, key); err != nil {
				c.logger.Warn("shared cache delete failed", zap.String("key", key), zap.Error(err))
			}
		}
		_ = c.local.Delete(ctx, key)
	}
}

func (c *QuoteCache) read(ctx context.Context, key string) (*models.Quote, bool) {
	var (
		payload []byte
		err     error
	)
	if c.shared != nil {
		payload, err = c.shared.Get(ctx, key)
		if err != nil {
			// Entries written while the shared store refused writes live locally.
			if !errors.Is(err, ErrCacheMiss) {
				c.logger.Warn("shared cache read failed, using local cache", zap.String("key", key), zap.Error(err))
			}
			payload, err = c.local.Get(ctx, key)
		}
	} else {
		payload, err = c.local.Get(ctx, key)
	}
	if err != nil {
		return nil, false
	}

	var entry cachedQuote
	if err := msgpack.Unmarshal(payload, &entry); err != nil {
		c.logger.Debug("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	q, err := entry.decode()
	if err != nil {
		c.logger.Debug("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return q, true
}

func (c *QuoteCache) write(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if c.shared != nil {
		err := c.shared.Set(ctx, key, payload, ttl)
		if err == nil {
			return
		}
		c.logger.Warn("shared cache write failed, using local cache", zap.String("key", key), zap.Error(err))
	}
	_ = c.local.Set(ctx, key, payload, ttl)
}

func encodeQuote(q *models.Quote) cachedQuote {
	entry := cachedQuote{
		Symbol:    q.Symbol,
		Price:     q.Price.String(),
		Currency:  q.Currency,
		Timestamp: q.Timestamp.UTC(),
		Source:    q.Source,
	}
	if q.Change24h != nil {
		s := q.Change24h.String()
		entry.Change24h = &s
	}
	if q.ChangePercent24h != nil {
		s := q.ChangePercent24h.String()
		entry.ChangePercent24h = &s
	}
	return entry
}

func (e cachedQuote) decode() (*models.Quote, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return nil, err
	}
	q := &models.Quote{
		Symbol:    e.Symbol,
		Price:     price,
		Currency:  e.Currency,
		Timestamp: e.Timestamp,
		Source:    e.Source,
	}
	if e.Change24h != nil {
		d, err := decimal.NewFromString(*e.Change24h)
		if err != nil {
			return nil, err
		}
		q.Change24h = &d
	}
	if e.ChangePercent24h != nil {
		d, err := decimal.NewFromString(*e.ChangePercent24h)
		if err != nil {
			return nil, err
		}
		q.ChangePercent24h = &d
	}
	return q, nil
}
