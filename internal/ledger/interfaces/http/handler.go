// Package http exposes the ledger over gin.
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/wealthledger/internal/ledger/application"
	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	"github.com/wyfcoding/wealthledger/pkg/logger"
	"github.com/wyfcoding/wealthledger/pkg/response"
)

const dateLayout = "2006-01-02"

type LedgerHandler struct {
	app *application.LedgerService
	loc *time.Location
}

func NewLedgerHandler(app *application.LedgerService, loc *time.Location) *LedgerHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerHandler{app: app, loc: loc}
}

func (h *LedgerHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/ledger")
	{
		api.POST("/events", h.WriteEvent)
		api.DELETE("/events/:id", h.DeleteEvent)
		api.GET("/read", h.Read)
		api.GET("/snapshot", h.GetSnapshot)
		api.DELETE("/snapshot", h.InvalidateSnapshot)
		api.GET("/price/:asset", h.GetPrice)
		api.POST("/prices", h.UpdatePrice)
		api.POST("/admin/backfill", h.Backfill)
		api.GET("/admin/sync-queue", h.SyncQueue)
	}
}

type writeEventRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	AssetID       string `json:"asset_id" binding:"required"`
	AccountID     string `json:"account_id"`
	Kind          string `json:"kind" binding:"required"`
	OccurredAt    string `json:"occurred_at" binding:"required"`
	UnitsDelta    string `json:"units_delta"`
	PriceOverride string `json:"price_override"`
	PriceClose    string `json:"price_close"`
	Notes         string `json:"notes"`
	Source        string `json:"source"`
}

func (h *LedgerHandler) WriteEvent(c *gin.Context) {
	var req writeEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	occurredAt, err := time.ParseInLocation(time.RFC3339, req.OccurredAt, h.loc)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "occurred_at must be RFC3339")
		return
	}

	event := &domain.Event{
		UserID:     req.UserID,
		AssetID:    req.AssetID,
		AccountID:  req.AccountID,
		Kind:       domain.EventKind(req.Kind),
		OccurredAt: occurredAt,
		Notes:      req.Notes,
		Source:     domain.Provenance(req.Source),
	}
	if event.UnitsDelta, err = parseOptionalDecimal(req.UnitsDelta); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "bad units_delta")
		return
	}
	if event.PriceOverride, err = parseOptionalDecimal(req.PriceOverride); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "bad price_override")
		return
	}
	if event.PriceClose, err = parseOptionalDecimal(req.PriceClose); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "bad price_close")
		return
	}

	id, err := h.app.Commands.WriteEvent(c.Request.Context(), event)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"event_id": id})
}

func (h *LedgerHandler) DeleteEvent(c *gin.Context) {
	id := c.Param("id")
	if err := h.app.Commands.DeleteEvent(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"event_id": id})
}

// Read dispatches on query=daily_series|monthly_series|holdings_at|
// asset_breakdown|performance_analysis.
func (h *LedgerHandler) Read(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := c.Request.Context()
	switch c.Query("query") {
	case "daily_series":
		from, to, ok := h.dateRange(c)
		if !ok {
			return
		}
		points, err := h.app.Queries.DailySeries(ctx, userID, from, to)
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Success(c, points)

	case "monthly_series":
		from, to, ok := h.dateRange(c)
		if !ok {
			return
		}
		points, err := h.app.Queries.MonthlySeries(ctx, userID, from, to)
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Success(c, points)

	case "holdings_at":
		date, ok := h.dateParam(c, "date")
		if !ok {
			return
		}
		rows, err := h.app.Queries.HoldingsAt(ctx, userID, date)
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Success(c, rows)

	case "asset_breakdown":
		from, to, ok := h.dateRange(c)
		if !ok {
			return
		}
		rows, err := h.app.Queries.AssetBreakdown(ctx, userID, from, to)
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Success(c, rows)

	case "performance_analysis":
		from, to, ok := h.dateRange(c)
		if !ok {
			return
		}
		result, err := h.app.Queries.PerformanceAnalysis(ctx, userID, from, to, c.Query("benchmark"))
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Success(c, result)

	default:
		response.ErrorWithStatus(c, http.StatusBadRequest, "unknown query type")
	}
}

func (h *LedgerHandler) GetSnapshot(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "user_id is required")
		return
	}
	date, ok := h.dateParam(c, "date")
	if !ok {
		return
	}

	snap, err := h.app.Queries.GetSnapshot(c.Request.Context(), userID, date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, snap)
}

func (h *LedgerHandler) InvalidateSnapshot(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "user_id is required")
		return
	}

	if s := c.Query("date"); s != "" {
		date, err := time.ParseInLocation(dateLayout, s, h.loc)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		h.app.Queries.InvalidateSnapshot(userID, &date)
	} else {
		h.app.Queries.InvalidateSnapshot(userID, nil)
	}
	response.Success(c, nil)
}

func (h *LedgerHandler) GetPrice(c *gin.Context) {
	assetID := c.Param("asset")
	price, err := h.app.Prices.GetCurrentPrice(c.Request.Context(), assetID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"asset_id": assetID, "price": price})
}

type updatePriceRequest struct {
	AssetID    string  `json:"asset_id" binding:"required"`
	Price      string  `json:"price" binding:"required"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

func (h *LedgerHandler) UpdatePrice(c *gin.Context) {
	var req updatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "bad price")
		return
	}
	source := domain.PriceSource(req.Source)
	if source == "" {
		source = domain.PriceSourceManual
	}
	confidence := req.Confidence
	if confidence == 0 {
		confidence = 1
	}

	if err := h.app.Prices.UpdateAssetPrice(c.Request.Context(), req.AssetID, price, source, confidence); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, nil)
}

type backfillRequest struct {
	UserID  string `json:"user_id"`
	From    string `json:"from" binding:"required"`
	To      string `json:"to" binding:"required"`
	Replace bool   `json:"replace"`
}

func (h *LedgerHandler) Backfill(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}
	from, err := time.ParseInLocation(dateLayout, req.From, h.loc)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.ParseInLocation(dateLayout, req.To, h.loc)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}

	count, err := h.app.Commands.Backfill(c.Request.Context(), req.UserID, from, to, req.Replace)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"rows_mirrored": count})
}

func (h *LedgerHandler) SyncQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	items, err := h.app.SyncQueueStatus(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, items)
}

// --- helpers ---

func (h *LedgerHandler) dateRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, ok := h.dateParam(c, "from")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := h.dateParam(c, "to")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		response.ErrorWithStatus(c, http.StatusBadRequest, "to must not precede from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *LedgerHandler) dateParam(c *gin.Context, name string) (time.Time, bool) {
	s := c.Query(name)
	if s == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, name+" is required")
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, s, h.loc)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, name+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func (h *LedgerHandler) writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, domain.ErrValidation):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEventNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotEntitled):
		response.ErrorWithStatus(c, http.StatusForbidden, "performance analysis requires a premium plan")
	case errors.Is(err, domain.ErrBackfillConflict):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrReadUnavailable), errors.Is(err, domain.ErrEventLogUnavailable):
		logger.Error(ctx, "request failed", "error", err)
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, "ledger temporarily unavailable")
	default:
		logger.Error(ctx, "request failed", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error")
	}
}

func parseOptionalDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
