// Package health exposes the dispatcher's liveness endpoint. Besides the
// database ping it reports how much retry work is parked, which is the first
// number to look at when deliveries stall.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RetryQueue reports how many deliveries are waiting on a retry.
type RetryQueue interface {
	QueueDepth() int
}

type Status struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message,omitempty"`
	Database   bool   `json:"database"`
	RetryQueue int    `json:"retry_queue_depth"`
}

const pingTimeout = time.Second

// HTTPHandler serves the health status. A failed database ping flips the
// response to 503; retry queue depth is informational and never unhealthy on
// its own, a full queue is the engine doing its job.
func HTTPHandler(pool *pgxpool.Pool, queue RetryQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok", Database: true}

		if queue != nil {
			st.RetryQueue = queue.QueueDepth()
		}
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "db ping failed"
				st.Database = false
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
