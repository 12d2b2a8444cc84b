package opshttp

import (
	"encoding/json"
	"net/http"

	"github.com/keithlinneman/playdrop/internal/log"
)

type sweepResponse struct {
	Scanned    int      `json:"scanned"`
	Expired    int      `json:"expired"`
	Orphans    int      `json:"orphans"`
	Errors     []string `json:"errors,omitempty"`
	DurationMS int64    `json:"durationMs"`
}

// sweepHandler runs one sweep synchronously and reports what it reclaimed.
func sweepHandler(L log.Logger, s Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		res := s.Sweep(ctx)

		resp := sweepResponse{
			Scanned:    res.Scanned,
			Expired:    res.Expired,
			Orphans:    res.Orphans,
			DurationMS: res.Duration.Milliseconds(),
		}
		for _, err := range res.Errors {
			resp.Errors = append(resp.Errors, err.Error())
		}
		L.Info(ctx, "manual sweep completed", "expired", res.Expired, "orphans", res.Orphans, "errors", len(res.Errors))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			L.Warn(ctx, "failed to encode sweep response", "error", err)
		}
	}
}
