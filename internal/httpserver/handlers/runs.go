package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
)

const maxRunsLimit = 500

type runsResponse struct {
	Service string             `json:"service,omitempty"`
	Path    string             `json:"path,omitempty"`
	Count   int                `json:"count"`
	Runs    []domain.RunRecord `json:"runs"`
}

// Runs returns recent run records, newest first. ?path= selects one service
// file, ?service= every file that ran under that name. Requires Redis.
func Runs(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.RunsStore == nil {
			writeError(w, http.StatusServiceUnavailable, "run history requires redis")
			return
		}

		query := r.URL.Query()
		limit := d.HistoryLimit
		if raw := query.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		limit = min(limit, maxRunsLimit)

		service := strings.TrimSpace(query.Get("service"))
		path := strings.TrimSpace(query.Get("path"))

		var (
			runs []domain.RunRecord
			err  error
		)
		switch {
		case path != "":
			runs, err = d.RunsStore.ListRuns(r.Context(), path, limit)
		case service != "":
			runs, err = d.RunsStore.ListRunsByName(r.Context(), service, limit)
		default:
			runs, err = d.RunsStore.ListAllRuns(r.Context(), limit)
		}
		if err != nil {
			d.Logger.Error("failed to list runs",
				logger.String("service", service),
				logger.String("path", path),
				logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to read run history")
			return
		}
		if runs == nil {
			runs = []domain.RunRecord{}
		}

		writeJSON(w, http.StatusOK, runsResponse{Service: service, Path: path, Count: len(runs), Runs: runs})
	}
}
