package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const predictionColumns = `id, run_id, digit_type, target_date, predicted_value, confidence,
	rank_no, method, was_correct, created_at`

// ReplacePredictions 在一个事务内替换 (目标日期, 类型, 方法) 下的全部预测
func (s *DB) ReplacePredictions(ctx context.Context, targetDate time.Time, digitType DigitType, method string, predictions []Prediction) error {
	date := FormatDate(targetDate)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM predictions WHERE target_date = ? AND digit_type = ? AND method = ?`,
		date, string(digitType), method); err != nil {
		return fmt.Errorf("failed to delete previous predictions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO predictions (run_id, digit_type, target_date,
		predicted_value, confidence, rank_no, method, was_correct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare prediction insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for i := range predictions {
		p := &predictions[i]
		result, err := stmt.ExecContext(ctx, p.RunID, string(digitType), date,
			p.PredictedValue, p.Confidence, p.Rank, method, formatTimestamp(now))
		if err != nil {
			return fmt.Errorf("failed to save prediction %s: %w", p.PredictedValue, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		p.ID = id
		p.CreatedAt = TruncateSecond(now)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit predictions: %w", err)
	}
	return nil
}

// GetPredictionsByDate 获取目标日期的预测，digitType 为空时返回全部类型
func (s *DB) GetPredictionsByDate(ctx context.Context, targetDate time.Time, digitType DigitType) ([]Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE target_date = ?`
	args := []interface{}{FormatDate(targetDate)}
	if digitType != "" {
		query += ` AND digit_type = ?`
		args = append(args, string(digitType))
	}
	query += ` ORDER BY digit_type, method, rank_no`

	return s.queryPredictions(ctx, query, args...)
}

// GetUpcomingPredictions 获取该类型、该方法最近一个目标日期的预测
func (s *DB) GetUpcomingPredictions(ctx context.Context, digitType DigitType, method string) ([]Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions
		WHERE digit_type = ? AND method = ? AND target_date = (
			SELECT MAX(target_date) FROM predictions WHERE digit_type = ? AND method = ?)
		ORDER BY rank_no`

	return s.queryPredictions(ctx, query, string(digitType), method, string(digitType), method)
}

// MarkPredictionResult 更新预测结果，重复调用结果相同
func (s *DB) MarkPredictionResult(ctx context.Context, id int64, correct bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE predictions SET was_correct = ? WHERE id = ?`, boolToInt(correct), id)
	if err != nil {
		return fmt.Errorf("failed to update prediction result: %w", err)
	}
	return nil
}

// GetCorrectPredictions 获取该类型最近命中的预测
func (s *DB) GetCorrectPredictions(ctx context.Context, digitType DigitType, limit int) ([]Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions
		WHERE digit_type = ? AND was_correct = 1
		ORDER BY target_date DESC, rank_no
		LIMIT ?`

	return s.queryPredictions(ctx, query, string(digitType), limit)
}

// CleanupExpiredPredictions 清理目标日期早于 before 且没有对应开奖数据的未验证预测（如开奖日调整）
func (s *DB) CleanupExpiredPredictions(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM predictions
		WHERE target_date < ? AND was_correct IS NULL
		AND target_date NOT IN (SELECT draw_date FROM lottery_draws)`, FormatDate(before))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired predictions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

func (s *DB) queryPredictions(ctx context.Context, query string, args ...interface{}) ([]Prediction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var predictions []Prediction
	for rows.Next() {
		var p Prediction
		var digitType, targetDate, createdAt string
		var wasCorrect sql.NullInt64
		if err := rows.Scan(&p.ID, &p.RunID, &digitType, &targetDate, &p.PredictedValue,
			&p.Confidence, &p.Rank, &p.Method, &wasCorrect, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.DigitType = DigitType(digitType)
		if p.TargetDate, err = ParseDate(targetDate); err != nil {
			return nil, err
		}
		if wasCorrect.Valid {
			correct := wasCorrect.Int64 == 1
			p.WasCorrect = &correct
		}
		p.CreatedAt = parseTimestamp(createdAt)
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading prediction rows: %w", err)
	}

	return predictions, nil
}

// TruncateSecond 去掉秒以下精度，与库中存储的时间戳一致
func TruncateSecond(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
