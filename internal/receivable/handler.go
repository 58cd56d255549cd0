package receivable

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Handler exposes accounts receivable over JSON.
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

// MountRoutes registers routes below /receivables.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/aging-report", h.aging)
	r.Get("/customers/{customerID}/statement", h.statement)
	r.Get("/{id}", h.show)
	r.Post("/{id}/payments", h.registerPayment)
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"max=20"`
	Reference string          `json:"reference" validate:"max=100"`
	Notes     string          `json:"notes" validate:"max=500"`
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.RegisterPayment(r.Context(), PaymentInput{
		AccountID: accountID,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: strings.TrimSpace(req.Reference),
		Notes:     strings.TrimSpace(req.Notes),
		UserID:    actor,
	})
	if err != nil {
		h.fail(w, r, "register payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryUUID(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := httpx.QueryInt(r, "page", 1)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.List(r.Context(), ListFilter{
		Status:     Status(strings.ToUpper(r.URL.Query().Get("status"))),
		CustomerID: customerID,
		Page:       page,
		PerPage:    limit,
	})
	if err != nil {
		h.fail(w, r, "list receivables", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.QueryTime(r, "as_of", nil)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var at time.Time
	if asOf != nil {
		at = *asOf
	}
	report, err := h.service.Aging(r.Context(), at)
	if err != nil {
		h.fail(w, r, "aging report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get receivable", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.URLUUID(r, "customerID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.Statement(r.Context(), customerID)
	if err != nil {
		h.fail(w, r, "customer statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.ProblemFor(err).Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
