// Package tier implements the five storage tiers behind the memory
// coordinator: the pinned manifest, the semantic index, the knowledge graph
// adapter, the encrypted cold vault and the derived-result cache.
package tier

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// Single-byte key prefixes for the badger indexes shared by the vault and
// the result cache.
const (
	prefixCacheEntry = byte(0x01) // cache key -> cacheMeta JSON
	prefixCacheStats = byte(0x02) // stats date -> CacheStats JSON
	prefixVaultDoc   = byte(0x03) // doc id -> vaultMeta JSON
	prefixVaultAudit = byte(0x04) // doc id + seq -> AuditRecord JSON
)

func prefixed(prefix byte, key string) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, prefix)
	return append(out, key...)
}

// openBadger opens (creating if needed) a badger store under dir with its
// internal logging silenced; operational logging happens at this package's
// level instead.
func openBadger(dir string) (*badger.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open index at %s: %w", dir, err)
	}
	return db, nil
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated payload behind a live index row.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
