package sales

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

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{saleID}", h.handleGet)
	r.Post("/{saleID}/deliver", h.handleDeliver)
}

type itemRequest struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Quantity  string `json:"quantity" validate:"required"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

type createRequest struct {
	CustomerID     int64         `json:"customer_id" validate:"required"`
	WarehouseID    int64         `json:"warehouse_id" validate:"required"`
	InvoiceDate    string        `json:"invoice_date"`
	Items          []itemRequest `json:"items" validate:"required,min=1,dive"`
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

	items := make([]ItemInput, 0, len(req.Items))
	for _, ir := range req.Items {
		qty, err := decimal.NewFromString(ir.Quantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a decimal number")
			return
		}
		price, err := decimal.NewFromString(ir.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be a decimal number")
			return
		}
		items = append(items, ItemInput{ProductID: ir.ProductID, Quantity: qty, UnitPrice: price})
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
		CustomerID:     req.CustomerID,
		WarehouseID:    req.WarehouseID,
		InvoiceDate:    invoiceDate,
		Items:          items,
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
	httpx.JSON(w, http.StatusCreated, saleResponse(doc))
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	doc, err := h.service.Deliver(r.Context(), tenant, urlInt(r, "saleID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(doc))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	doc, err := h.service.Get(r.Context(), tenant, urlInt(r, "saleID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(doc))
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
		out = append(out, saleResponse(d))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sales":      out,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyItems), errors.Is(err, ErrInvalidItem):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotPending):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	default:
		h.logger.Error("sale request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
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

func saleResponse(s Sale) map[string]any {
	items := make([]map[string]any, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, map[string]any{
			"id":         item.ID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity.String(),
			"unit_price": item.UnitPrice.String(),
			"line_total": item.LineTotal.String(),
		})
	}
	return map[string]any{
		"id":              s.ID,
		"customer_id":     s.CustomerID,
		"warehouse_id":    s.WarehouseID,
		"number":          s.Number,
		"invoice_date":    s.InvoiceDate.Format("2006-01-02"),
		"status":          s.Status,
		"sub_total":       s.SubTotal.String(),
		"tax":             s.Tax.String(),
		"discount":        s.Discount.String(),
		"delivery_charge": s.DeliveryCharge.String(),
		"grand_total":     s.GrandTotal.String(),
		"paid_amount":     s.PaidAmount.String(),
		"payment_status":  s.PaymentStatus,
		"notes":           s.Notes,
		"items":           items,
		"created_at":      s.CreatedAt,
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
