package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/internal/arbitrage"
	"github.com/mselser95/arbitrage-detector/internal/crossrate"
	"github.com/mselser95/arbitrage-detector/internal/matrix"
	"github.com/mselser95/arbitrage-detector/internal/settings"
	"github.com/mselser95/arbitrage-detector/pkg/cache"
	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// maxSettingsBody bounds POST /api/settings payloads.
const maxSettingsBody = 1 << 20

// Detector is the read and settings surface of the arbitrage detector.
type Detector interface {
	Now() time.Time
	GetOrderBooks(exchange, instrument string) []*types.OrderBook
	GetCrossRates() []*crossrate.SynthOrderBook
	GetArbitrages() []*arbitrage.Arbitrage
	GetArbitrage(conversionPath string) (*arbitrage.Arbitrage, error)
	GetArbitrageHistory(since time.Time, take int) []*arbitrage.Arbitrage
	GetMatrix(assetPair string) (*matrix.Matrix, error)
	GetPublicMatrix(assetPair string) (*matrix.Matrix, error)
	GetSettings() settings.Settings
	SetSettings(ctx context.Context, update *settings.Settings) error
}

// MatrixHistory reads persisted matrix snapshots.
type MatrixHistory interface {
	GetHistory(ctx context.Context, assetPair string, at time.Time) (*matrix.Matrix, error)
}

// APIHandler serves the detector read API.
type APIHandler struct {
	detector Detector
	history  MatrixHistory
	cache    *cache.Aside
	logger   *zap.Logger
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(detector Detector, history MatrixHistory, c *cache.Aside, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		detector: detector,
		history:  history,
		cache:    c,
		logger:   logger,
	}
}

// Routes registers the API endpoints on r.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/orderBooks", h.HandleOrderBooks)
	r.Get("/crossRates", h.HandleCrossRates)
	r.Get("/arbitrages", h.HandleArbitrages)
	r.Get("/arbitrage", h.HandleArbitrage)
	r.Get("/arbitrageHistory", h.HandleArbitrageHistory)
	r.Get("/matrix", h.HandleMatrix)
	r.Get("/publicMatrix", h.HandlePublicMatrix)
	r.Get("/matrixHistory", h.HandleMatrixHistory)
	r.Get("/settings", h.HandleGetSettings)
	r.Post("/settings", h.HandleSetSettings)
}

// HandleOrderBooks handles GET /api/orderBooks?exchange=&instrument=.
func (h *APIHandler) HandleOrderBooks(w http.ResponseWriter, r *http.Request) {
	exchange := r.URL.Query().Get("exchange")
	instrument := r.URL.Query().Get("instrument")

	books, err := cache.Load(h.cache, "orderBooks:"+exchange+":"+instrument, func() ([]*types.OrderBook, error) {
		return h.detector.GetOrderBooks(exchange, instrument), nil
	})
	h.respond(w, books, err)
}

// HandleCrossRates handles GET /api/crossRates.
func (h *APIHandler) HandleCrossRates(w http.ResponseWriter, _ *http.Request) {
	rows, err := cache.Load(h.cache, "crossRates", func() ([]crossrate.Row, error) {
		rates := h.detector.GetCrossRates()
		rows := make([]crossrate.Row, len(rates))
		for i, rate := range rates {
			rows[i] = rate.Row()
		}
		return rows, nil
	})
	h.respond(w, rows, err)
}

// HandleArbitrages handles GET /api/arbitrages.
func (h *APIHandler) HandleArbitrages(w http.ResponseWriter, _ *http.Request) {
	rows, err := cache.Load(h.cache, "arbitrages", func() ([]arbitrage.Row, error) {
		return h.rows(h.detector.GetArbitrages()), nil
	})
	h.respond(w, rows, err)
}

// HandleArbitrage handles GET /api/arbitrage?conversionPath=.
func (h *APIHandler) HandleArbitrage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("conversionPath")
	if strings.TrimSpace(path) == "" {
		h.writeError(w, "missing required query parameter: conversionPath", http.StatusBadRequest)
		return
	}

	row, err := cache.Load(h.cache, "arbitrage:"+path, func() (arbitrage.Row, error) {
		arb, err := h.detector.GetArbitrage(path)
		if err != nil {
			return arbitrage.Row{}, err
		}
		return arb.Row(h.detector.Now()), nil
	})
	h.respond(w, row, err)
}

// HandleArbitrageHistory handles GET /api/arbitrageHistory?since=RFC3339&take=N.
func (h *APIHandler) HandleArbitrageHistory(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, "invalid since: expected RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed.UTC()
	}

	take := 0
	if raw := r.URL.Query().Get("take"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, "invalid take: expected non-negative integer", http.StatusBadRequest)
			return
		}
		take = parsed
	}

	key := fmt.Sprintf("arbitrageHistory:%d:%d", since.UnixNano(), take)
	rows, err := cache.Load(h.cache, key, func() ([]arbitrage.Row, error) {
		return h.rows(h.detector.GetArbitrageHistory(since, take)), nil
	})
	h.respond(w, rows, err)
}

// HandleMatrix handles GET /api/matrix?assetPair=.
func (h *APIHandler) HandleMatrix(w http.ResponseWriter, r *http.Request) {
	h.handleMatrix(w, r, "matrix:", h.detector.GetMatrix)
}

// HandlePublicMatrix handles GET /api/publicMatrix?assetPair=.
func (h *APIHandler) HandlePublicMatrix(w http.ResponseWriter, r *http.Request) {
	h.handleMatrix(w, r, "publicMatrix:", h.detector.GetPublicMatrix)
}

func (h *APIHandler) handleMatrix(w http.ResponseWriter, r *http.Request, prefix string, build func(string) (*matrix.Matrix, error)) {
	pair := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("assetPair")))
	if pair == "" {
		h.writeError(w, "missing required query parameter: assetPair", http.StatusBadRequest)
		return
	}

	m, err := cache.Load(h.cache, prefix+pair, func() (*matrix.Matrix, error) {
		return build(pair)
	})
	h.respond(w, m, err)
}

// HandleMatrixHistory handles GET /api/matrixHistory?assetPair=&dateTime=RFC3339.
func (h *APIHandler) HandleMatrixHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, "matrix history not configured", http.StatusNotFound)
		return
	}

	pair := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("assetPair")))
	if pair == "" {
		h.writeError(w, "missing required query parameter: assetPair", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("dateTime"))
	if err != nil {
		h.writeError(w, "invalid dateTime: expected RFC3339", http.StatusBadRequest)
		return
	}
	at = at.UTC()

	key := fmt.Sprintf("matrixHistory:%s:%d", pair, at.UnixNano())
	m, err := cache.Load(h.cache, key, func() (*matrix.Matrix, error) {
		return h.history.GetHistory(r.Context(), pair, at)
	})
	h.respond(w, m, err)
}

// HandleGetSettings handles GET /api/settings.
func (h *APIHandler) HandleGetSettings(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.detector.GetSettings())
}

// HandleSetSettings handles POST /api/settings. An empty body is rejected.
// Thresholds omitted from the payload keep their current values.
func (h *APIHandler) HandleSetSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBody))
	if err != nil {
		h.writeError(w, "read request body", http.StatusBadRequest)
		return
	}

	var update *settings.Settings
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && trimmed != "null" {
		current := h.detector.GetSettings()
		update = &settings.Settings{
			MinSpread:     current.MinSpread,
			MinimumPnL:    current.MinimumPnL,
			MinimumVolume: current.MinimumVolume,
		}
		if err := json.Unmarshal(body, update); err != nil {
			h.writeError(w, "invalid settings payload", http.StatusBadRequest)
			return
		}
	}

	if err := h.detector.SetSettings(r.Context(), update); err != nil {
		h.respond(w, nil, err)
		return
	}
	h.cache.Invalidate()

	h.logger.Info("settings-updated-via-api")
	h.writeJSON(w, http.StatusOK, h.detector.GetSettings())
}

func (h *APIHandler) rows(arbs []*arbitrage.Arbitrage) []arbitrage.Row {
	now := h.detector.Now()
	rows := make([]arbitrage.Row, len(arbs))
	for i, a := range arbs {
		rows[i] = a.Row(now)
	}

	return rows
}

// respond writes v, or maps err to a status code.
func (h *APIHandler) respond(w http.ResponseWriter, v any, err error) {
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, v)
	case errors.Is(err, types.ErrNotFound):
		h.writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, types.ErrInvalidSettings):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("api-request-failed", zap.Error(err))
		h.writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *APIHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	APIErrorsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
