package accounting

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes party-ledger reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs accounting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers accounting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ledger", h.handleLedger)
	r.Get("/ledger/{partyKind}/{partyID}/balance", h.handleBalance)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	partyID, _ := strconv.ParseInt(r.URL.Query().Get("party_id"), 10, 64)
	entries, err := h.service.PartyLedger(r.Context(), tenant.CompanyID, LedgerFilter{
		PartyKind: PartyKind(r.URL.Query().Get("party_kind")),
		PartyID:   partyID,
	})
	if err != nil {
		h.logger.Error("list ledger failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":          e.ID,
			"party_kind":  e.PartyKind,
			"party_id":    e.PartyID,
			"txn_id":      e.TxnID,
			"txn_type":    e.TxnType,
			"description": e.Description,
			"debit":       e.Debit.String(),
			"credit":      e.Credit.String(),
			"entry_date":  e.EntryDate,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	kind := PartyKind(chi.URLParam(r, "partyKind"))
	if kind != PartySupplier && kind != PartyCustomer {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "party kind must be SUPPLIER or CUSTOMER")
		return
	}
	partyID, err := strconv.ParseInt(chi.URLParam(r, "partyID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid party id")
		return
	}
	balance, err := h.service.PartyBalance(r.Context(), tenant.CompanyID, kind, partyID)
	if err != nil {
		h.logger.Error("party balance failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"party_kind": kind,
		"party_id":   partyID,
		"balance":    balance.String(),
	})
}
