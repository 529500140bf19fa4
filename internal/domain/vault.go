package domain

import "time"

// VaultReceipt is returned by every vault write. Callers must check
// Encrypted: when the encryption capability is unavailable the vault stores
// plaintext and says so here, an explicit trade-off rather than a silent one.
type VaultReceipt struct {
	DocID         string    `json:"doc_id"`
	Encrypted     bool      `json:"encrypted"`
	SizeBytes     int       `json:"size_bytes"`
	PlaintextHash string    `json:"plaintext_hash"`
	CipherHash    string    `json:"cipher_hash"`
	StoredAt      time.Time `json:"stored_at"`
}

// VaultItem is a retrieved archive entry.
type VaultItem struct {
	DocID     string `json:"doc_id"`
	Content   []byte `json:"content,omitempty"`
	Decrypted bool   `json:"decrypted"`
	Tokens    int    `json:"tokens"`
}

// IntegrityReport is the outcome of a vault verification pass. A mismatch is
// surfaced, never repaired.
type IntegrityReport struct {
	DocID        string `json:"doc_id"`
	Intact       bool   `json:"intact"`
	ExpectedHash string `json:"expected_hash,omitempty"`
	ActualHash   string `json:"actual_hash,omitempty"`
}

// AuditRecord is appended for every vault read.
type AuditRecord struct {
	DocID      string    `json:"doc_id"`
	AccessedAt time.Time `json:"accessed_at"`
	AccessType string    `json:"access_type"`
	Purpose    string    `json:"purpose,omitempty"`
}

// CacheStats is the daily hit/miss/cost accounting the result cache persists.
type CacheStats struct {
	Date      string  `json:"date"`
	Hits      int     `json:"hits"`
	Misses    int     `json:"misses"`
	CostSaved float64 `json:"cost_saved"`
}
