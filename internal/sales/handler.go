package sales

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Handler exposes the sale engine over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers sale routes under the caller's prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/daily-summary", h.DailySummary)
	r.Get("/seller-report/{userID}", h.SellerReport)
	r.Get("/{id}", h.Show)
	r.Post("/{id}/cancel", h.Cancel)
}

type createSaleRequest struct {
	CustomerID  *uuid.UUID        `json:"customer_id,omitempty"`
	WarehouseID uuid.UUID         `json:"warehouse_id" validate:"required"`
	PaymentType string            `json:"payment_type" validate:"required,oneof=CASH CREDIT"`
	Items       []saleItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount    decimal.Decimal   `json:"discount"`
	Notes       string            `json:"notes,omitempty" validate:"max=500"`
}

type saleItemRequest struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Create handles POST /sales.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createSaleRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateInput{
		CustomerID:     req.CustomerID,
		WarehouseID:    req.WarehouseID,
		PaymentType:    PaymentType(strings.ToUpper(req.PaymentType)),
		Discount:       req.Discount,
		Notes:          strings.TrimSpace(req.Notes),
		UserID:         actor,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, LineInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	sale, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

// Cancel handles POST /sales/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Cancel(r.Context(), id, actor)
	if err != nil {
		h.fail(w, r, "cancel sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Show handles GET /sales/{id}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

// List handles GET /sales.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := h.listFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) listFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		PaymentType: PaymentType(strings.ToUpper(q.Get("payment_type"))),
		Status:      Status(strings.ToUpper(q.Get("status"))),
	}
	var err error
	if filter.UserID, err = httpx.QueryUUID(r, "user_id"); err != nil {
		return ListFilter{}, err
	}
	if filter.CustomerID, err = httpx.QueryUUID(r, "customer_id"); err != nil {
		return ListFilter{}, err
	}
	loc := h.service.numbers.Location()
	if filter.From, err = httpx.QueryTime(r, "from", loc); err != nil {
		return ListFilter{}, err
	}
	if filter.To, err = httpx.QueryTime(r, "to", loc); err != nil {
		return ListFilter{}, err
	}
	if filter.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		return ListFilter{}, err
	}
	if filter.PerPage, err = httpx.QueryInt(r, "limit", 0); err != nil {
		return ListFilter{}, err
	}
	return filter, nil
}

// DailySummary handles GET /sales/daily-summary?date=YYYY-MM-DD&user_id=.
func (h *Handler) DailySummary(w http.ResponseWriter, r *http.Request) {
	day, err := httpx.QueryTime(r, "date", h.service.numbers.Location())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	userID, err := httpx.QueryUUID(r, "user_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var at time.Time
	if day != nil {
		at = *day
	}
	summary, err := h.service.DailySummary(r.Context(), at, userID)
	if err != nil {
		h.fail(w, r, "daily summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// SellerReport handles GET /sales/seller-report/{userID}?from=&to=.
func (h *Handler) SellerReport(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.URLUUID(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc := h.service.numbers.Location()
	from, err := httpx.QueryTime(r, "from", loc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryTime(r, "to", loc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var fromAt, toAt time.Time
	if from != nil {
		fromAt = *from
	}
	if to != nil {
		toAt = *to
	}
	report, err := h.service.SellerReport(r.Context(), userID, fromAt, toAt)
	if err != nil {
		h.fail(w, r, "seller report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	p := httpx.ProblemFor(err)
	if p.Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
