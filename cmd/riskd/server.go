package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domainerrors "github.com/claimsight/risk-engine/internal/domain/errors"
	"github.com/claimsight/risk-engine/internal/infrastructure/config"
	"github.com/claimsight/risk-engine/internal/infrastructure/database"
	"github.com/claimsight/risk-engine/internal/service/scoring"
)

// newServer builds the internal HTTP surface: health, metrics, and the
// scoring hooks the claims collaborator calls. This is not a public API.
func newServer(cfg *config.Config, scorer scoring.Service, pool *database.ConnectionPool) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /internal/claims/{id}/score", func(w http.ResponseWriter, r *http.Request) {
		claimID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid claim id")
			return
		}

		result, err := scorer.ScoreClaim(r.Context(), claimID)
		if err != nil {
			status := http.StatusInternalServerError
			if domainerrors.IsType(err, domainerrors.ErrorTypeNotFound) {
				status = http.StatusNotFound
			}
			slog.ErrorContext(r.Context(), "scoring request failed",
				slog.String("claim_id", claimID.String()),
				slog.String("error", err.Error()))
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /internal/claims/{id}/risk", func(w http.ResponseWriter, r *http.Request) {
		claimID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid claim id")
			return
		}

		score, level, err := scorer.GetRiskScore(r.Context(), claimID)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case domainerrors.IsType(err, domainerrors.ErrorTypeNotFound):
				status = http.StatusNotFound
			case domainerrors.IsType(err, domainerrors.ErrorTypeUnavailable):
				status = http.StatusConflict
			}
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"claim_id":   claimID,
			"score":      score,
			"risk_level": level,
		})
	})

	mux.HandleFunc("GET /internal/tenants/{id}/fraud-stats", func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}

		window := 30 * 24 * time.Hour
		if raw := r.URL.Query().Get("window"); raw != "" {
			window, err = time.ParseDuration(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid window duration")
				return
			}
		}

		stats, err := scorer.GetFraudStatistics(r.Context(), tenantID, window)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, stats)
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
