package returns

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for sale returns.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs returns handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers return routes. The returnable-items lookup lives here
// rather than under sales because its semantics belong to the return engine.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/returnable/{saleID}", h.handleReturnableItems)
	r.Get("/{returnID}", h.handleGet)
	r.Put("/{returnID}", h.handleUpdate)
	r.Post("/{returnID}/complete", h.handleComplete)
	r.Post("/{returnID}/cancel", h.handleCancel)
}

type lineRequest struct {
	SaleItemID int64  `json:"sale_item_id" validate:"required"`
	Quantity   string `json:"quantity" validate:"required"`
	Condition  string `json:"condition" validate:"required"`
}

type createRequest struct {
	SaleID         int64         `json:"sale_id" validate:"required"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Tax            string        `json:"tax"`
	Discount       string        `json:"discount"`
	RefundedAmount string        `json:"refunded_amount"`
	Reason         string        `json:"reason"`
}

type updateRequest struct {
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Tax            string        `json:"tax"`
	Discount       string        `json:"discount"`
	RefundedAmount string        `json:"refunded_amount"`
	Reason         string        `json:"reason"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines, err := parseLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amounts, err := parseAmounts(req.Tax, req.Discount, req.RefundedAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doc, err := h.service.Create(r.Context(), tenant, CreateInput{
		SaleID:         req.SaleID,
		Lines:          lines,
		Tax:            amounts[0],
		Discount:       amounts[1],
		RefundedAmount: amounts[2],
		Reason:         req.Reason,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, returnResponse(doc))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines, err := parseLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amounts, err := parseAmounts(req.Tax, req.Discount, req.RefundedAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doc, err := h.service.Update(r.Context(), tenant, UpdateInput{
		ReturnID:       urlInt(r, "returnID"),
		Lines:          lines,
		Tax:            amounts[0],
		Discount:       amounts[1],
		RefundedAmount: amounts[2],
		Reason:         req.Reason,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnResponse(doc))
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	doc, err := h.service.Complete(r.Context(), tenant, urlInt(r, "returnID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnResponse(doc))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	doc, err := h.service.Cancel(r.Context(), tenant, urlInt(r, "returnID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnResponse(doc))
}

func (h *Handler) handleReturnableItems(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	items, err := h.service.ReturnableItems(r.Context(), tenant, urlInt(r, "saleID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"sale_item_id": item.SaleItemID,
			"product_id":   item.ProductID,
			"original":     item.Original.String(),
			"returned":     item.Returned.String(),
			"available":    item.Available.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	doc, err := h.service.Get(r.Context(), tenant, urlInt(r, "returnID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnResponse(doc))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	page := shared.NewPagination(int(queryInt(r, "page")), int(queryInt(r, "per_page")), 0)
	docs, total, err := h.service.List(r.Context(), tenant, page)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, returnResponse(d))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"returns":    out,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var over *OverReturnError
	switch {
	case errors.Is(err, ErrEmptyLines), errors.Is(err, ErrInvalidLine):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &over):
		httpx.ProblemWithFields(w, http.StatusConflict, "Over Return", err.Error(), map[string]any{
			"sale_item_id": over.SaleItemID,
			"product_id":   over.ProductID,
			"original":     over.Original.String(),
			"returned":     over.Returned.String(),
			"requested":    over.Requested.String(),
		})
	case errors.Is(err, ErrSaleNotDelivered), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotPending):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		h.logger.Error("return request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseLines(reqs []lineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for _, lr := range reqs {
		qty, err := decimal.NewFromString(lr.Quantity)
		if err != nil {
			return nil, errors.New("quantity must be a decimal number")
		}
		cond := Condition(lr.Condition)
		if !cond.Valid() {
			return nil, errors.New("condition must be one of GOOD, DAMAGED, DEFECTIVE, EXPIRED, WRONG_ITEM")
		}
		lines = append(lines, LineInput{SaleItemID: lr.SaleItemID, Quantity: qty, Condition: cond})
	}
	return lines, nil
}

func parseAmounts(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		if v == "" {
			out[i] = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.New("monetary amounts must be decimal numbers")
		}
		out[i] = d
	}
	return out, nil
}

func returnResponse(ret SaleReturn) map[string]any {
	lines := make([]map[string]any, 0, len(ret.Lines))
	for _, line := range ret.Lines {
		lines = append(lines, map[string]any{
			"id":           line.ID,
			"sale_item_id": line.SaleItemID,
			"product_id":   line.ProductID,
			"quantity":     line.Quantity.String(),
			"unit_price":   line.UnitPrice.String(),
			"line_total":   line.LineTotal.String(),
			"condition":    line.Condition,
		})
	}
	return map[string]any{
		"id":              ret.ID,
		"sale_id":         ret.SaleID,
		"customer_id":     ret.CustomerID,
		"warehouse_id":    ret.WarehouseID,
		"number":          ret.Number,
		"status":          ret.Status,
		"sub_total":       ret.SubTotal.String(),
		"tax":             ret.Tax.String(),
		"discount":        ret.Discount.String(),
		"grand_total":     ret.GrandTotal.String(),
		"refunded_amount": ret.RefundedAmount.String(),
		"refund_status":   ret.RefundStatus,
		"reason":          ret.Reason,
		"lines":           lines,
		"created_at":      ret.CreatedAt,
		"completed_at":    ret.CompletedAt,
		"cancelled_at":    ret.CancelledAt,
	}
}

func urlInt(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return v
}

func queryInt(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
