package tier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"caselore/internal/domain"
)

// DefaultCacheTTL is how long a derived result stays valid. The corpus for
// one case grows slowly; a month-old synthesis is still worth serving.
const DefaultCacheTTL = 30 * 24 * time.Hour

// cacheMeta is the badger-indexed record for one cached result.
type cacheMeta struct {
	Key       string    `json:"key"`
	File      string    `json:"file"`
	Tokens    int       `json:"tokens"`
	SourceIDs []string  `json:"source_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResultCache stores previously computed retrieval results keyed by the
// normalized query plus the doc set it covered. Payloads are JSON files on
// disk; badger holds the index and daily stats.
type ResultCache struct {
	dir         string
	db          *badger.DB
	ttl         time.Duration
	pricePerMil float64
	logger      *zap.Logger

	// now is swapped in tests to force expiry.
	now func() time.Time
}

func NewResultCache(dir string, ttl time.Duration, pricePerMillion float64, logger *zap.Logger) (*ResultCache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	db, err := openBadger(filepath.Join(dir, "cache_index"))
	if err != nil {
		return nil, err
	}
	return &ResultCache{
		dir:         dir,
		db:          db,
		ttl:         ttl,
		pricePerMil: pricePerMillion,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (c *ResultCache) Close() error {
	return c.db.Close()
}

// CacheKey derives the lookup key: lowercased, whitespace-collapsed query
// text joined with the sorted doc ids. The same question over the same
// evidence always lands on the same entry.
func CacheKey(query string, docIDs []string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sorted := make([]string, len(docIDs))
	copy(sorted, docIDs)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(normalized + "\n" + strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}

func (c *ResultCache) Put(_ context.Context, query string, docIDs []string, payload []byte) error {
	key := CacheKey(query, docIDs)
	file := filepath.Join(c.dir, "cache_payload", key+".json")
	if err := writeFileAtomic(file, payload); err != nil {
		return fmt.Errorf("cache: write payload: %w", err)
	}

	now := c.now().UTC()
	meta := cacheMeta{
		Key:       key,
		File:      file,
		Tokens:    domain.EstimateTokens(string(payload)),
		SourceIDs: docIDs,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(prefixed(prefixCacheEntry, key), data)
	})
	if err != nil {
		return fmt.Errorf("cache: index write: %w", err)
	}
	return nil
}

// Get returns the cached payload and whether it was a hit. An index row whose
// payload file has gone missing is drift: logged, dropped, and counted a miss.
func (c *ResultCache) Get(_ context.Context, query string, docIDs []string) ([]byte, bool, error) {
	key := CacheKey(query, docIDs)

	var meta cacheMeta
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixed(prefixCacheEntry, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			c.recordOutcome(false, 0)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: index read: %w", err)
	}

	if c.now().UTC().After(meta.ExpiresAt) {
		c.drop(key, meta.File)
		c.recordOutcome(false, 0)
		return nil, false, nil
	}

	payload, err := os.ReadFile(meta.File)
	if err != nil {
		c.logger.Warn("cache drift: index row without payload file",
			zap.String("key", key), zap.String("file", meta.File))
		c.drop(key, "")
		c.recordOutcome(false, 0)
		return nil, false, nil
	}

	c.recordOutcome(true, meta.Tokens)
	return payload, true, nil
}

func (c *ResultCache) drop(key, file string) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(prefixed(prefixCacheEntry, key))
	})
	if err != nil {
		c.logger.Warn("cache: drop index row", zap.String("key", key), zap.Error(err))
	}
	if file != "" {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("cache: remove payload", zap.String("file", file), zap.Error(err))
		}
	}
}

// recordOutcome maintains the per-day hit/miss/savings counters. A hit saves
// the tokens it would otherwise have cost to recompute.
func (c *ResultCache) recordOutcome(hit bool, tokens int) {
	date := c.now().UTC().Format("2006-01-02")
	key := prefixed(prefixCacheStats, date)

	err := c.db.Update(func(txn *badger.Txn) error {
		stats := domain.CacheStats{Date: date}
		item, err := txn.Get(key)
		if err == nil {
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stats)
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if hit {
			stats.Hits++
			stats.CostSaved += float64(tokens) / 1_000_000 * c.pricePerMil
		} else {
			stats.Misses++
		}

		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		c.logger.Warn("cache: stats update failed", zap.Error(err))
	}
}

// Stats returns the counters for a day (format 2006-01-02); zero-valued when
// the day saw no traffic.
func (c *ResultCache) Stats(_ context.Context, date string) (domain.CacheStats, error) {
	stats := domain.CacheStats{Date: date}
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixed(prefixCacheStats, date))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stats)
		})
	})
	return stats, err
}

// Purge deletes expired index rows and their payload files. Returns how many
// entries went.
func (c *ResultCache) Purge(_ context.Context) (int, error) {
	type victim struct {
		key  string
		file string
	}
	var victims []victim

	now := c.now().UTC()
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{prefixCacheEntry}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var meta cacheMeta
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return err
			}
			if now.After(meta.ExpiresAt) {
				victims = append(victims, victim{key: meta.Key, file: meta.File})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, v := range victims {
		c.drop(v.key, v.file)
	}
	return len(victims), nil
}

func (c *ResultCache) Add(_ context.Context, _ domain.IngestItem) error {
	// Cache entries are written by the coordinator after retrieval, not by
	// ingestion.
	return nil
}

func (c *ResultCache) Query(ctx context.Context, q domain.MemoryQuery) (*domain.TierResult, error) {
	payload, hit, err := c.Get(ctx, q.Text, q.PriorityItems)
	if err != nil {
		return nil, err
	}
	if !hit {
		return &domain.TierResult{Tier: domain.TierCache}, nil
	}
	content := string(payload)
	return &domain.TierResult{
		Tier:      domain.TierCache,
		Content:   content,
		Relevance: 1.0,
		TokenCost: domain.EstimateTokens(content),
		Metadata:  map[string]any{"cache_hit": true},
	}, nil
}

func (c *ResultCache) Status(_ context.Context) domain.TierStatus {
	var items int
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte{prefixCacheEntry}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			items++
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("cache status failed", zap.Error(err))
		return domain.TierStatus{Tier: domain.TierCache, Available: false}
	}
	return domain.TierStatus{
		Tier:      domain.TierCache,
		Available: true,
		Items:     items,
		Detail:    map[string]any{"ttl_hours": c.ttl.Hours()},
	}
}
