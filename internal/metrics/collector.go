package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Counter reports store totals.
type Counter interface {
	CountUsers(ctx context.Context) (int, error)
	CountRecords(ctx context.Context) (int, error)
}

// StartCollector periodically updates gauge metrics from counter and, when
// db is non-nil, from the SQL connection pool. It blocks until ctx is done.
func StartCollector(ctx context.Context, counter Counter, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on startup
	collectMetrics(ctx, counter, db)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collectMetrics(ctx, counter, db)
		}
	}
}

func collectMetrics(ctx context.Context, counter Counter, db *sql.DB) {
	if db != nil {
		collectDatabaseStats(db)
	}
	collectBusinessMetrics(ctx, counter)
}

// collectDatabaseStats updates database connection pool metrics.
func collectDatabaseStats(db *sql.DB) {
	stats := db.Stats()

	DatabaseConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	DatabaseConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	DatabaseConnections.WithLabelValues("max_open").Set(float64(stats.MaxOpenConnections))
}

func collectBusinessMetrics(ctx context.Context, counter Counter) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if count, err := counter.CountUsers(ctx); err == nil {
		UsersTotal.Set(float64(count))
	} else {
		slog.Debug("failed to count users for metrics", "error", err)
	}

	if count, err := counter.CountRecords(ctx); err == nil {
		RecordsTotal.Set(float64(count))
	} else {
		slog.Debug("failed to count records for metrics", "error", err)
	}
}
