package purchasing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for purchase documents.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs purchasing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{purchaseID}", h.handleGet)
	r.Put("/{purchaseID}", h.handleUpdate)
	r.Delete("/{purchaseID}", h.handleDelete)
}

type lineRequest struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Quantity  string `json:"quantity" validate:"required"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

type createRequest struct {
	SupplierID     int64         `json:"supplier_id" validate:"required"`
	WarehouseID    int64         `json:"warehouse_id" validate:"required"`
	InvoiceDate    string        `json:"invoice_date"`
	Reference      string        `json:"reference"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Tax            string        `json:"tax"`
	Discount       string        `json:"discount"`
	DeliveryCharge string        `json:"delivery_charge"`
	PaidAmount     string        `json:"paid_amount"`
	Notes          string        `json:"notes"`
}

type updateRequest struct {
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Tax            string        `json:"tax"`
	Discount       string        `json:"discount"`
	DeliveryCharge string        `json:"delivery_charge"`
	PaidAmount     string        `json:"paid_amount"`
	Notes          string        `json:"notes"`
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
	amounts, err := parseAmounts(req.Tax, req.Discount, req.DeliveryCharge, req.PaidAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var invoiceDate time.Time
	if req.InvoiceDate != "" {
		invoiceDate, err = time.Parse("2006-01-02", req.InvoiceDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice_date must be YYYY-MM-DD")
			return
		}
	}

	doc, err := h.service.Create(r.Context(), tenant, CreateInput{
		SupplierID:     req.SupplierID,
		WarehouseID:    req.WarehouseID,
		InvoiceDate:    invoiceDate,
		Reference:      req.Reference,
		Lines:          lines,
		Tax:            amounts[0],
		Discount:       amounts[1],
		DeliveryCharge: amounts[2],
		PaidAmount:     amounts[3],
		Notes:          req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchaseResponse(doc))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	purchaseID := urlInt(r, "purchaseID")
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
	amounts, err := parseAmounts(req.Tax, req.Discount, req.DeliveryCharge, req.PaidAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doc, err := h.service.Update(r.Context(), tenant, UpdateInput{
		PurchaseID:     purchaseID,
		Lines:          lines,
		Tax:            amounts[0],
		Discount:       amounts[1],
		DeliveryCharge: amounts[2],
		PaidAmount:     amounts[3],
		Notes:          req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchaseResponse(doc))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	if err := h.service.Delete(r.Context(), tenant, urlInt(r, "purchaseID")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	doc, err := h.service.Get(r.Context(), tenant, urlInt(r, "purchaseID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchaseResponse(doc))
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
		out = append(out, purchaseResponse(d))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchases":  out,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyLines), errors.Is(err, ErrInvalidLine):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		h.logger.Error("purchase request failed", slog.Any("error", err))
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
		price, err := decimal.NewFromString(lr.UnitPrice)
		if err != nil {
			return nil, errors.New("unit_price must be a decimal number")
		}
		lines = append(lines, LineInput{ProductID: lr.ProductID, Quantity: qty, UnitPrice: price})
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

func purchaseResponse(p Purchase) map[string]any {
	lines := make([]map[string]any, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, map[string]any{
			"id":         l.ID,
			"product_id": l.ProductID,
			"quantity":   l.Quantity.String(),
			"unit_price": l.UnitPrice.String(),
			"line_total": l.LineTotal.String(),
		})
	}
	return map[string]any{
		"id":              p.ID,
		"supplier_id":     p.SupplierID,
		"warehouse_id":    p.WarehouseID,
		"number":          p.Number,
		"invoice_date":    p.InvoiceDate.Format("2006-01-02"),
		"status":          p.Status,
		"sub_total":       p.SubTotal.String(),
		"tax":             p.Tax.String(),
		"discount":        p.Discount.String(),
		"delivery_charge": p.DeliveryCharge.String(),
		"grand_total":     p.GrandTotal.String(),
		"paid_amount":     p.PaidAmount.String(),
		"payment_status":  p.PaymentStatus,
		"notes":           p.Notes,
		"lines":           lines,
		"created_at":      p.CreatedAt,
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
