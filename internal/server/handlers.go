package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/tokenledger/tokenledger/internal/auth"
	"github.com/tokenledger/tokenledger/internal/database"
	"github.com/tokenledger/tokenledger/internal/ingestion"
	"github.com/tokenledger/tokenledger/internal/metrics"
	"github.com/tokenledger/tokenledger/internal/models"
)

// RunLister lists recent ingestion runs for the status endpoint.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.RunLog, error)
}

// Handlers holds the dependencies of the HTTP API.
type Handlers struct {
	ingestor  ingestion.DateIngestor
	runs      RunLister
	db        *sql.DB
	authCfg   auth.Config
	adminHash string
	logger    *slog.Logger
}

// NewHandlers wires the API handlers. The admin password is hashed once at
// startup so login compares against the hash, never the raw value.
func NewHandlers(
	ingestor ingestion.DateIngestor,
	runs RunLister,
	db *sql.DB,
	authCfg auth.Config,
	logger *slog.Logger,
) (*Handlers, error) {
	adminHash, err := auth.HashPassword(authCfg.AdminPassword)
	if err != nil {
		return nil, err
	}

	return &Handlers{
		ingestor:  ingestor,
		runs:      runs,
		db:        db,
		authCfg:   authCfg,
		adminHash: adminHash,
		logger:    logger,
	}, nil
}

// Mux assembles the full route table. Health and metrics stay public; the
// trigger API requires a bearer token.
func (h *Handlers) Mux(collector *metrics.Collector) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", collector.Handler())
	mux.HandleFunc("POST /api/auth/token", h.handleToken)

	protected := auth.Middleware(h.authCfg)
	mux.Handle("POST /api/ingest/{date}", protected(http.HandlerFunc(h.handleIngest)))
	mux.Handle("GET /api/runs", protected(http.HandlerFunc(h.handleRuns)))

	return collector.InstrumentHandler(mux)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := database.HealthCheck(r.Context(), h.db); err != nil {
			h.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tokenRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

func (h *Handlers) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Operator == "" {
		req.Operator = "admin"
	}

	if !auth.CheckPassword(req.Password, h.adminHash) {
		h.logger.Warn("failed login attempt", "operator", req.Operator)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(req.Operator, h.authCfg.JWTSecret, h.authCfg.TokenDuration)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	date, err := models.ParseDate(r.PathValue("date"))
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if !date.Before(models.MidnightUTC(time.Now().UTC())) {
		http.Error(w, "date must be in the past", http.StatusBadRequest)
		return
	}

	operator, _ := auth.OperatorFromContext(r.Context())
	h.logger.Info("manual ingestion triggered",
		"date", models.FormatDate(date),
		"operator", operator,
	)

	stats, err := h.ingestor.IngestDate(r.Context(), date)
	if err != nil {
		h.logger.Error("manual ingestion failed", "date", models.FormatDate(date), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":              models.FormatDate(date),
		"cost_rows":         stats.CostRows,
		"usage_rows":        stats.UsageRows,
		"productivity_rows": stats.ProductivityRows,
		"spend_rows":        stats.SpendRows,
	})
}

func (h *Handlers) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
