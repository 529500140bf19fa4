package tier

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"caselore/internal/domain"
)

var (
	ErrInvalidKey       = errors.New("vault: key file must hold 32 bytes (raw or hex)")
	ErrDecryptionFailed = errors.New("vault: decryption failed (authentication error)")
	ErrVaultNotFound    = errors.New("vault: document not found")
)

// vaultMeta is the badger-indexed record for one archived document. The
// payload itself lives in a sidecar .enc file.
type vaultMeta struct {
	DocID         string    `json:"doc_id"`
	File          string    `json:"file"`
	Encrypted     bool      `json:"encrypted"`
	SizeBytes     int       `json:"size_bytes"`
	PlaintextHash string    `json:"plaintext_hash"`
	CipherHash    string    `json:"cipher_hash"`
	StoredAt      time.Time `json:"stored_at"`
}

// ColdVault is the bottom tier: rarely read, encrypted at rest, every read
// audited. When no key file can be loaded the vault keeps working in
// plaintext mode and says so on every receipt, so the degraded state is a
// decision the caller makes, not one the vault hides.
type ColdVault struct {
	dir    string
	db     *badger.DB
	gcm    cipher.AEAD
	logger *zap.Logger
}

func NewColdVault(dir, keyPath string, logger *zap.Logger) (*ColdVault, error) {
	db, err := openBadger(filepath.Join(dir, "vault_index"))
	if err != nil {
		return nil, err
	}

	v := &ColdVault{dir: dir, db: db, logger: logger}

	gcm, err := loadAEAD(keyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || keyPath == "" {
			logger.Warn("vault encryption unavailable, storing plaintext",
				zap.String("key_path", keyPath))
		} else {
			db.Close()
			return nil, err
		}
	}
	v.gcm = gcm
	return v, nil
}

func loadAEAD(keyPath string) (cipher.AEAD, error) {
	if keyPath == "" {
		return nil, os.ErrNotExist
	}
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	key := raw
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) == 64 {
		if decoded, err := hex.DecodeString(trimmed); err == nil {
			key = decoded
		}
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (v *ColdVault) Close() error {
	return v.db.Close()
}

// Encrypted reports whether writes are protected by a loaded key.
func (v *ColdVault) Encrypted() bool {
	return v.gcm != nil
}

// Store archives content under docID. The receipt records both hashes and
// whether the payload was actually encrypted; callers must check Encrypted.
func (v *ColdVault) Store(_ context.Context, docID string, content []byte) (*domain.VaultReceipt, error) {
	prev, err := v.meta(docID)
	if err != nil && !errors.Is(err, ErrVaultNotFound) {
		return nil, err
	}

	plainHash := sha256.Sum256(content)

	payload := content
	encrypted := false
	if v.gcm != nil {
		nonce := make([]byte, v.gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("vault: nonce: %w", err)
		}
		payload = v.gcm.Seal(nonce, nonce, content, []byte(docID))
		encrypted = true
	}
	cipherHash := sha256.Sum256(payload)

	file := filepath.Join(v.dir, "vault_payload", hex.EncodeToString(plainHash[:8])+"-"+sanitizeDocID(docID)+".enc")
	if err := writeFileAtomic(file, payload); err != nil {
		return nil, fmt.Errorf("vault: write payload: %w", err)
	}

	meta := vaultMeta{
		DocID:         docID,
		File:          file,
		Encrypted:     encrypted,
		SizeBytes:     len(content),
		PlaintextHash: hex.EncodeToString(plainHash[:]),
		CipherHash:    hex.EncodeToString(cipherHash[:]),
		StoredAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	err = v.db.Update(func(txn *badger.Txn) error {
		return txn.Set(prefixed(prefixVaultDoc, docID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("vault: index write: %w", err)
	}

	// A re-store writes a fresh payload file; the superseded one would
	// otherwise linger unreferenced.
	if prev != nil && prev.File != file {
		if err := os.Remove(prev.File); err != nil && !errors.Is(err, os.ErrNotExist) {
			v.logger.Warn("vault: remove superseded payload",
				zap.String("doc_id", docID), zap.Error(err))
		}
	}

	return &domain.VaultReceipt{
		DocID:         docID,
		Encrypted:     encrypted,
		SizeBytes:     meta.SizeBytes,
		PlaintextHash: meta.PlaintextHash,
		CipherHash:    meta.CipherHash,
		StoredAt:      meta.StoredAt,
	}, nil
}

// Retrieve reads archived documents, optionally decrypting, and appends an
// audit record for every id touched. Unknown ids are skipped with a warning
// rather than failing the batch.
func (v *ColdVault) Retrieve(_ context.Context, ids []string, decrypt bool, purpose string) ([]domain.VaultItem, error) {
	var items []domain.VaultItem
	for _, id := range ids {
		meta, err := v.meta(id)
		if err != nil {
			if errors.Is(err, ErrVaultNotFound) {
				v.logger.Warn("vault retrieve: unknown doc", zap.String("doc_id", id))
				continue
			}
			return nil, err
		}

		payload, err := os.ReadFile(meta.File)
		if err != nil {
			return nil, fmt.Errorf("vault: read payload %s: %w", id, err)
		}

		item := domain.VaultItem{DocID: id}
		content := payload
		if meta.Encrypted {
			if decrypt {
				content, err = v.open(payload, id)
				if err != nil {
					return nil, err
				}
				item.Decrypted = true
			} else {
				content = nil
			}
		} else {
			item.Decrypted = true
		}
		item.Content = content
		item.Tokens = domain.EstimateTokens(string(content))
		items = append(items, item)

		accessType := "metadata"
		if item.Decrypted {
			accessType = "decrypt"
		}
		if err := v.audit(id, accessType, purpose); err != nil {
			v.logger.Warn("vault audit append failed", zap.String("doc_id", id), zap.Error(err))
		}
	}
	return items, nil
}

func (v *ColdVault) open(payload []byte, docID string) ([]byte, error) {
	if v.gcm == nil {
		return nil, &domain.ConfigurationError{Tier: domain.TierVault, Reason: "no decryption key loaded"}
	}
	ns := v.gcm.NonceSize()
	if len(payload) < ns {
		return nil, ErrDecryptionFailed
	}
	content, err := v.gcm.Open(nil, payload[:ns], payload[ns:], []byte(docID))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return content, nil
}

// VerifyIntegrity recomputes each stored payload's hash against the one
// recorded at write time. Mismatches are reported, never repaired.
func (v *ColdVault) VerifyIntegrity(_ context.Context, ids []string) ([]domain.IntegrityReport, error) {
	if len(ids) == 0 {
		all, err := v.allDocIDs()
		if err != nil {
			return nil, err
		}
		ids = all
	}

	reports := make([]domain.IntegrityReport, 0, len(ids))
	for _, id := range ids {
		meta, err := v.meta(id)
		if err != nil {
			if errors.Is(err, ErrVaultNotFound) {
				reports = append(reports, domain.IntegrityReport{DocID: id, Intact: false})
				continue
			}
			return nil, err
		}
		payload, err := os.ReadFile(meta.File)
		if err != nil {
			reports = append(reports, domain.IntegrityReport{
				DocID:        id,
				Intact:       false,
				ExpectedHash: meta.CipherHash,
			})
			continue
		}
		actual := sha256.Sum256(payload)
		actualHex := hex.EncodeToString(actual[:])
		reports = append(reports, domain.IntegrityReport{
			DocID:        id,
			Intact:       actualHex == meta.CipherHash,
			ExpectedHash: meta.CipherHash,
			ActualHash:   actualHex,
		})
	}
	return reports, nil
}

func (v *ColdVault) audit(docID, accessType, purpose string) error {
	rec := domain.AuditRecord{
		DocID:      docID,
		AccessedAt: time.Now().UTC(),
		AccessType: accessType,
		Purpose:    purpose,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := prefixed(prefixVaultAudit, docID+"/"+rec.AccessedAt.Format(time.RFC3339Nano))
	return v.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// AuditTrail returns every recorded access for a document, oldest first.
func (v *ColdVault) AuditTrail(_ context.Context, docID string) ([]domain.AuditRecord, error) {
	var records []domain.AuditRecord
	err := v.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := prefixed(prefixVaultAudit, docID+"/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec domain.AuditRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func (v *ColdVault) meta(docID string) (*vaultMeta, error) {
	var meta vaultMeta
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixed(prefixVaultDoc, docID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrVaultNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (v *ColdVault) allDocIDs() ([]string, error) {
	var ids []string
	err := v.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte{prefixVaultDoc}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[1:]))
		}
		return nil
	})
	return ids, err
}

func (v *ColdVault) Add(ctx context.Context, item domain.IngestItem) error {
	_, err := v.Store(ctx, item.DocID, item.Content)
	return err
}

// Query serves only explicit document requests: the vault never does topic
// search, it decrypts the ids the caller names.
func (v *ColdVault) Query(ctx context.Context, q domain.MemoryQuery) (*domain.TierResult, error) {
	if len(q.PriorityItems) == 0 {
		return &domain.TierResult{Tier: domain.TierVault}, nil
	}
	items, err := v.Retrieve(ctx, q.PriorityItems, true, "memory query")
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	docs := make([]string, 0, len(items))
	for _, item := range items {
		fmt.Fprintf(&b, "[VAULT %s] %s\n", item.DocID, string(item.Content))
		docs = append(docs, item.DocID)
	}
	content := b.String()
	return &domain.TierResult{
		Tier:       domain.TierVault,
		Content:    content,
		Relevance:  0.5,
		TokenCost:  domain.EstimateTokens(content),
		SourceDocs: docs,
	}, nil
}

func (v *ColdVault) Status(_ context.Context) domain.TierStatus {
	ids, err := v.allDocIDs()
	if err != nil {
		v.logger.Warn("vault status failed", zap.Error(err))
		return domain.TierStatus{Tier: domain.TierVault, Available: false}
	}
	return domain.TierStatus{
		Tier:      domain.TierVault,
		Available: true,
		Items:     len(ids),
		Detail:    map[string]any{"encrypted": v.gcm != nil},
	}
}

func sanitizeDocID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
