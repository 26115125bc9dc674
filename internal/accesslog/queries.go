package accesslog

import (
	"context"
	"time"

	"github.com/blackroad/edge-gateway/internal/models"
)

// RouteStats aggregates the retained access logs per path for the admin
// analytics surface.
func (l *Logger) RouteStats(ctx context.Context, from, to time.Time) ([]models.RouteStats, error) {
	query := `
        SELECT path,
               COUNT(*) AS requests,
               COUNT(*) FILTER (WHERE status_code >= 400) AS errors,
               COALESCE(AVG(duration_ms), 0) AS avg_duration_ms,
               MAX(created_at)::text AS last_seen
        FROM access_logs
        WHERE created_at BETWEEN $1 AND $2
        GROUP BY path
        ORDER BY requests DESC
    `

	rows, err := l.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.RouteStats
	for rows.Next() {
		var s models.RouteStats
		if err := rows.Scan(&s.Path, &s.Requests, &s.Errors, &s.AvgDuration, &s.LastSeen); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}
