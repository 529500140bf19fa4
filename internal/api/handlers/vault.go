package handlers

import (
	"encoding/json"
	"net/http"

	"caselore/internal/domain"
	"caselore/internal/tier"

	"github.com/go-chi/chi/v5"
)

type VaultHandler struct {
	vault *tier.ColdVault
}

func NewVaultHandler(vault *tier.ColdVault) *VaultHandler {
	return &VaultHandler{vault: vault}
}

type vaultRetrieveRequest struct {
	DocIDs  []string `json:"doc_ids"`
	Decrypt bool     `json:"decrypt"`
	Purpose string   `json:"purpose,omitempty"`
}

type vaultItemResponse struct {
	DocID     string `json:"doc_id"`
	Content   string `json:"content,omitempty"`
	Decrypted bool   `json:"decrypted"`
	Tokens    int    `json:"tokens"`
}

type vaultRetrieveResponse struct {
	Items []vaultItemResponse `json:"items"`
	Count int                 `json:"count"`
}

func (h *VaultHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req vaultRetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.DocIDs) == 0 {
		writeError(w, http.StatusBadRequest, "doc_ids is required")
		return
	}

	items, err := h.vault.Retrieve(r.Context(), req.DocIDs, req.Decrypt, req.Purpose)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve from vault")
		return
	}

	out := make([]vaultItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, vaultItemResponse{
			DocID:     it.DocID,
			Content:   string(it.Content),
			Decrypted: it.Decrypted,
			Tokens:    it.Tokens,
		})
	}

	writeJSON(w, http.StatusOK, vaultRetrieveResponse{Items: out, Count: len(out)})
}

type vaultVerifyRequest struct {
	DocIDs []string `json:"doc_ids,omitempty"`
}

type vaultVerifyResponse struct {
	Reports []domain.IntegrityReport `json:"reports"`
	Intact  bool                     `json:"intact"`
}

// Verify checks stored payloads against their recorded hashes. An empty
// doc_ids list verifies the whole vault.
func (h *VaultHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req vaultVerifyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	reports, err := h.vault.VerifyIntegrity(r.Context(), req.DocIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to verify vault")
		return
	}

	intact := true
	for _, rep := range reports {
		if !rep.Intact {
			intact = false
			break
		}
	}
	if reports == nil {
		reports = []domain.IntegrityReport{}
	}

	writeJSON(w, http.StatusOK, vaultVerifyResponse{Reports: reports, Intact: intact})
}

type auditTrailResponse struct {
	DocID   string               `json:"doc_id"`
	Records []domain.AuditRecord `json:"records"`
	Count   int                  `json:"count"`
}

func (h *VaultHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if docID == "" {
		writeError(w, http.StatusBadRequest, "doc id is required")
		return
	}

	records, err := h.vault.AuditTrail(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load audit trail")
		return
	}
	if records == nil {
		records = []domain.AuditRecord{}
	}

	writeJSON(w, http.StatusOK, auditTrailResponse{DocID: docID, Records: records, Count: len(records)})
}
