package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.handleBalances)
	r.Get("/movements", h.handleMovements)
	r.Get("/overview", h.handleOverview)
	r.Post("/adjustments", h.handleAdjustment)
}

type adjustmentRequest struct {
	ProductID   int64  `json:"product_id" validate:"required"`
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	Quantity    string `json:"quantity" validate:"required"`
	Note        string `json:"note"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a decimal number")
		return
	}
	movement, err := h.service.PostAdjustment(r.Context(), tenant, AdjustmentInput{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Quantity:    qty,
		Note:        req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse(movement))
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	warehouseID := queryInt(r, "warehouse_id")
	balances, err := h.service.Balances(r.Context(), tenant, warehouseID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": out})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	filter := MovementFilter{
		ProductID:   queryInt(r, "product_id"),
		WarehouseID: queryInt(r, "warehouse_id"),
		Kind:        MovementKind(r.URL.Query().Get("kind")),
		From:        queryDate(r, "from"),
		To:          queryDate(r, "to"),
		Limit:       int(queryInt(r, "limit")),
	}
	movements, err := h.service.Movements(r.Context(), tenant, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

// handleOverview returns balances and recent movements in one response,
// fetched concurrently.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	warehouseID := queryInt(r, "warehouse_id")

	var balances []Balance
	var movements []Movement
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		balances, err = h.service.Balances(ctx, tenant, warehouseID)
		return err
	})
	g.Go(func() error {
		var err error
		movements, err = h.service.Movements(ctx, tenant, MovementFilter{WarehouseID: warehouseID, Limit: 50})
		return err
	})
	if err := g.Wait(); err != nil {
		h.respondError(w, err)
		return
	}

	balOut := make([]map[string]any, 0, len(balances))
	for _, b := range balances {
		balOut = append(balOut, balanceResponse(b))
	}
	movOut := make([]map[string]any, 0, len(movements))
	for _, m := range movements {
		movOut = append(movOut, movementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": balOut, "recent_movements": movOut})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &insufficient):
		httpx.ProblemWithFields(w, http.StatusConflict, "Insufficient Stock", err.Error(), map[string]any{
			"product_id":   insufficient.ProductID,
			"warehouse_id": insufficient.WarehouseID,
			"available":    insufficient.Available.String(),
			"requested":    insufficient.Requested.String(),
		})
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func movementResponse(m Movement) map[string]any {
	return map[string]any{
		"id":            m.ID,
		"product_id":    m.ProductID,
		"warehouse_id":  m.WarehouseID,
		"direction":     m.Direction,
		"quantity":      m.Quantity.String(),
		"kind":          m.Kind,
		"ref_type":      m.RefType,
		"ref_id":        m.RefID,
		"balance_after": m.BalanceAfter.String(),
		"note":          m.Note,
		"created_at":    m.CreatedAt,
	}
}

func balanceResponse(b Balance) map[string]any {
	return map[string]any{
		"product_id":   b.ProductID,
		"warehouse_id": b.WarehouseID,
		"quantity":     b.Quantity.String(),
		"updated_at":   b.UpdatedAt,
	}
}

func queryInt(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func queryDate(r *http.Request, name string) time.Time {
	t, _ := time.Parse("2006-01-02", r.URL.Query().Get(name))
	return t
}
