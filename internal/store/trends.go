package store

import (
	"context"
	"fmt"
)

// UpsertDailyTrend folds one turn's scores into today's bucket. Sums
// and a count are stored; means are derived at read time so concurrent
// writers never race on a stored mean.
func (t *Tx) UpsertDailyTrend(ctx context.Context, userID string, valence, arousal, confidence, extremeness float64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO daily_trends (
		  user_id, day, n,
		  valence_sum, arousal_sum, confidence_sum, extremeness_sum
		)
		VALUES ($1, current_date, 1, $2, $3, $4, $5)
		ON CONFLICT (user_id, day) DO UPDATE SET
		  n = daily_trends.n + 1,
		  valence_sum = daily_trends.valence_sum + $2,
		  arousal_sum = daily_trends.arousal_sum + $3,
		  confidence_sum = daily_trends.confidence_sum + $4,
		  extremeness_sum = daily_trends.extremeness_sum + $5,
		  updated_at = now()
	`, userID, valence, arousal, confidence, extremeness)
	if err != nil {
		return fmt.Errorf("upsert daily trend: %w", err)
	}
	return nil
}

// ListDailyTrends returns the last `days` buckets (sparse, only days
// that exist) with means computed from the stored sums.
func (t *Tx) ListDailyTrends(ctx context.Context, userID string, days int) ([]TrendPoint, error) {
	if days < 1 {
		days = 1
	}
	if days > 180 {
		days = 180
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT
		  to_char(day, 'YYYY-MM-DD') AS day,
		  n,
		  valence_sum / nullif(n, 0) AS valence_mean,
		  arousal_sum / nullif(n, 0) AS arousal_mean,
		  confidence_sum / nullif(n, 0) AS confidence_mean,
		  extremeness_sum / nullif(n, 0) AS extremeness_mean
		FROM daily_trends
		WHERE user_id = $1 AND day >= current_date - ($2 - 1)
		ORDER BY day ASC
	`, userID, days)
	if err != nil {
		return nil, fmt.Errorf("list trends: %w", err)
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err = rows.Scan(&p.Day, &p.N, &p.ValenceMean, &p.ArousalMean, &p.ConfidenceMean, &p.ExtremenessMean); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
