package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"signal-enginev1/internal/aggregator"
	"signal-enginev1/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	defaultOrderLimit = 50
	maxOrderLimit     = 500
)

type handlers struct {
	d Deps
}

type scanRequest struct {
	Symbols []string `json:"symbols"`
}

type signalList struct {
	Count   int                   `json:"count"`
	Signals []model.TradingSignal `json:"signals"`
}

func listOf(signals []model.TradingSignal) signalList {
	if signals == nil {
		signals = []model.TradingSignal{}
	}
	return signalList{Count: len(signals), Signals: signals}
}

func errorJSON(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"status": "error", "message": msg})
}

func (h *handlers) health(c *gin.Context) {
	if h.d.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}
	report, code := h.d.Health.Report()
	c.JSON(code, report)
}

// latest collects the stored signal of every configured symbol. Symbols
// with nothing stored are skipped; store errors are logged and skipped.
func (h *handlers) latest(ctx context.Context) []model.TradingSignal {
	symbols := h.d.Symbols()
	out := make([]model.TradingSignal, 0, len(symbols))
	for _, sym := range symbols {
		sig, err := h.d.Store.LatestSignal(ctx, sym)
		if err != nil {
			log.Printf("[api] latest signal %s: %v", sym, err)
			continue
		}
		if sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}

// GET /api/v1/signals?min_confidence=60&action=BUY
func (h *handlers) signals(c *gin.Context) {
	var filters []aggregator.Filter
	if v := c.Query("min_confidence"); v != "" {
		floor, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "min_confidence must be a number")
			return
		}
		filters = append(filters, aggregator.ConfidenceFilter{Min: floor})
	}
	if v := c.Query("action"); v != "" {
		action := model.Action(strings.ToUpper(v))
		switch action {
		case model.ActionBuy, model.ActionSell, model.ActionHold:
		default:
			errorJSON(c, http.StatusBadRequest, "action must be BUY, SELL or HOLD")
			return
		}
		filters = append(filters, aggregator.FilterFunc(func(s model.TradingSignal) bool { return s.Action == action }))
	}

	var f aggregator.Filter
	if len(filters) > 0 {
		f = aggregator.Chain(filters...)
	}
	c.JSON(http.StatusOK, listOf(aggregator.Apply(f, h.latest(c.Request.Context()))))
}

// GET /api/v1/signals/:symbol
func (h *handlers) signal(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	sig, err := h.d.Store.LatestSignal(c.Request.Context(), symbol)
	if err != nil {
		log.Printf("[api] latest signal %s: %v", symbol, err)
		errorJSON(c, http.StatusBadGateway, "signal store unavailable")
		return
	}
	if sig == nil {
		errorJSON(c, http.StatusNotFound, "no signal for "+symbol)
		return
	}
	c.JSON(http.StatusOK, sig)
}

// GET /api/v1/recommendations: actionable signals above 65, most confident first.
func (h *handlers) recommendations(c *gin.Context) {
	recs := aggregator.Apply(aggregator.RecommendationFilter(), h.latest(c.Request.Context()))
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Confidence > recs[j].Confidence })
	c.JSON(http.StatusOK, listOf(recs))
}

// POST /api/v1/scan {"symbols": ["BTCUSDT"]}; an empty body scans every configured symbol.
func (h *handlers) scan(c *gin.Context) {
	var req scanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	symbols := make([]string, 0, len(req.Symbols))
	for _, s := range req.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		symbols = h.d.Symbols()
	}

	ctx := c.Request.Context()
	signals, err := h.d.Scanner.EvaluateMany(ctx, symbols)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			code = http.StatusGatewayTimeout
		}
		errorJSON(c, code, err.Error())
		return
	}
	if h.d.OnScan != nil && len(signals) > 0 {
		h.d.OnScan(ctx, signals)
	}
	c.JSON(http.StatusOK, listOf(signals))
}

// GET /api/v1/orders?symbol=BTCUSDT&limit=20
func (h *handlers) orders(c *gin.Context) {
	limit := defaultOrderLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errorJSON(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxOrderLimit)
	}
	records, err := h.d.Orders.Orders(c.Request.Context(), strings.ToUpper(c.Query("symbol")), limit)
	if err != nil {
		log.Printf("[api] orders: %v", err)
		errorJSON(c, http.StatusInternalServerError, "order journal unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "orders": records})
}

// GET /api/v1/account/balances
func (h *handlers) balances(c *gin.Context) {
	balances, err := h.d.Balances.Balances(c.Request.Context())
	if err != nil {
		log.Printf("[api] balances: %v", err)
		errorJSON(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}
