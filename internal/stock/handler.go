package stock

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Handler exposes warehouse stock operations.
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

// MountRoutes registers routes below /warehouses/{id}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.listStock)
	r.Get("/summary", h.summary)
	r.Get("/movements", h.movements)
	r.Post("/stock/entry", h.entry)
	r.Post("/stock/exit", h.exit)
	r.Post("/stock/adjust", h.adjust)
}

type moveRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
	Reason    string    `json:"reason" validate:"max=255"`
}

type adjustRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Delta     int       `json:"delta" validate:"ne=0"`
	Reason    string    `json:"reason" validate:"required,max=255"`
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Stock(r.Context(), warehouseID, strings.TrimSpace(r.URL.Query().Get("search")))
	if err != nil {
		h.fail(w, r, "list stock", err)
		return
	}
	if items == nil {
		items = []Item{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sum, err := h.service.Summary(r.Context(), warehouseID)
	if err != nil {
		h.fail(w, r, "stock summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.URLUUID(r, "id")
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
	out, err := h.service.Movements(r.Context(), MovementFilter{WarehouseID: warehouseID, Page: page, PerPage: limit})
	if err != nil {
		h.fail(w, r, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) entry(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "stock entry", h.service.Entry)
}

func (h *Handler) exit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "stock exit", h.service.Exit)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request, op string, post func(context.Context, MoveInput) (Result, error)) {
	actor, warehouseID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := post(r.Context(), MoveInput{
		WarehouseID: warehouseID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Reason:      strings.TrimSpace(req.Reason),
		UserID:      actor,
	})
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	actor, warehouseID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Adjust(r.Context(), AdjustInput{
		WarehouseID: warehouseID,
		ProductID:   req.ProductID,
		Delta:       req.Delta,
		Reason:      strings.TrimSpace(req.Reason),
		UserID:      actor,
	})
	if err != nil {
		h.fail(w, r, "stock adjust", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// target resolves the acting user and the warehouse in the path.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	warehouseID, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return actor, warehouseID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.ProblemFor(err).Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
