package repository

import (
	"context"
	"database/sql"
	"math"
	"time"

	"itsm/internal/common/db"
	"itsm/pkg/utils/logger"

	"go.uber.org/zap"
)

// Statistics aggregates problems, scoped to one responsible employee when
// responsibleID is set. It never fails: errors are logged and the zero value
// is returned.
func (r *SQLProblemRepository) Statistics(ctx context.Context, responsibleID *int64) Statistics {
	stats, err := r.statistics(ctx, responsibleID)
	if err != nil {
		logger.Warn(ctx, "problem statistics failed", zap.Error(err))
		return EmptyStatistics()
	}
	return stats
}

func (r *SQLProblemRepository) statistics(ctx context.Context, responsibleID *int64) (Statistics, error) {
	stats := EmptyStatistics()

	where := ""
	joinFilter := ""
	var args []interface{}
	if responsibleID != nil {
		where = " WHERE responsible_id = ?"
		joinFilter = " AND p.responsible_id = ?"
		args = append(args, *responsibleID)
	}

	countQuery := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status_id IN (1, 2, 3) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status_id = 4 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN impact_id = 1 THEN 1 ELSE 0 END), 0)
		FROM problem` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(
		&stats.Total, &stats.Open, &stats.Resolved, &stats.HighImpact,
	); err != nil {
		return Statistics{}, db.Classify(err)
	}

	byCategory, err := r.groupCounts(ctx, `
		SELECT c.name, COUNT(p.id) AS total
		FROM problem_category c
		LEFT JOIN problem p ON p.category_id = c.id`+joinFilter+`
		GROUP BY c.id, c.name
		ORDER BY total DESC, c.name ASC`, args...)
	if err != nil {
		return Statistics{}, err
	}
	stats.ByCategory = byCategory

	byStatus, err := r.groupCounts(ctx, `
		SELECT s.description, COUNT(p.id) AS total
		FROM problem_status s
		LEFT JOIN problem p ON p.status_id = s.id`+joinFilter+`
		GROUP BY s.id, s.description
		ORDER BY total DESC, s.id ASC`, args...)
	if err != nil {
		return Statistics{}, err
	}
	stats.ByStatus = byStatus

	avg, err := r.averageResolutionDays(ctx, where, args)
	if err != nil {
		return Statistics{}, err
	}
	stats.AvgResolutionDays = avg
	return stats, nil
}

func (r *SQLProblemRepository) groupCounts(ctx context.Context, query string, args ...interface{}) ([]LabelCount, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	counts := make([]LabelCount, 0)
	for rows.Next() {
		var item LabelCount
		if err := rows.Scan(&item.Label, &item.Total); err != nil {
			return nil, db.Classify(err)
		}
		counts = append(counts, item)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return counts, nil
}

// averageResolutionDays averages the whole-day difference between the
// calendar dates of identification and resolution, rounded to two decimals.
// Rows without a resolution date are excluded.
func (r *SQLProblemRepository) averageResolutionDays(ctx context.Context, where string, args []interface{}) (float64, error) {
	query := "SELECT identified_at, resolved_at FROM problem"
	if where == "" {
		query += " WHERE resolved_at IS NOT NULL"
	} else {
		query += where + " AND resolved_at IS NOT NULL"
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return 0, db.Classify(err)
	}
	defer rows.Close()

	var (
		totalDays int64
		n         int64
	)
	for rows.Next() {
		var (
			identifiedAt time.Time
			resolvedAt   sql.NullTime
		)
		if err := rows.Scan(&identifiedAt, &resolvedAt); err != nil {
			return 0, db.Classify(err)
		}
		if !resolvedAt.Valid {
			continue
		}
		totalDays += wholeDays(identifiedAt, resolvedAt.Time)
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, db.Classify(err)
	}
	if n == 0 {
		return 0, nil
	}
	return math.Round(float64(totalDays)/float64(n)*100) / 100, nil
}

// wholeDays is the number of calendar days from a to b in UTC.
func wholeDays(a, b time.Time) int64 {
	a = a.UTC()
	b = b.UTC()
	from := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int64(to.Sub(from).Hours() / 24)
}
