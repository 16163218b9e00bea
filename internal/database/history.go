package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// InsertAccuracyRecord 追加一条准确率记录
func (s *DB) InsertAccuracyRecord(ctx context.Context, record *AccuracyRecord) error {
	if record.EvaluatedAt.IsZero() {
		record.EvaluatedAt = TruncateSecond(s.now())
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO accuracy_records (period_start, period_end,
		prediction_method, total_predictions, correct_predictions, accuracy_percentage, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		FormatDate(record.PeriodStart), FormatDate(record.PeriodEnd), record.Method,
		record.TotalPredictions, record.CorrectPredictions, record.AccuracyPercentage,
		formatTimestamp(record.EvaluatedAt))
	if err != nil {
		return fmt.Errorf("failed to save accuracy record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	record.ID = id
	return nil
}

// GetAccuracyRecords 获取 period_end 不早于 since 的准确率记录，按时间正序；since 为零值时返回全部
func (s *DB) GetAccuracyRecords(ctx context.Context, since time.Time) ([]AccuracyRecord, error) {
	query := `SELECT id, period_start, period_end, prediction_method, total_predictions,
		correct_predictions, accuracy_percentage, evaluated_at FROM accuracy_records`
	var args []interface{}
	if !since.IsZero() {
		query += ` WHERE period_end >= ?`
		args = append(args, FormatDate(since))
	}
	query += ` ORDER BY period_end, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accuracy records: %w", err)
	}
	defer rows.Close()

	var records []AccuracyRecord
	for rows.Next() {
		var r AccuracyRecord
		var start, end, evaluated string
		if err := rows.Scan(&r.ID, &start, &end, &r.Method, &r.TotalPredictions,
			&r.CorrectPredictions, &r.AccuracyPercentage, &evaluated); err != nil {
			return nil, fmt.Errorf("failed to scan accuracy record: %w", err)
		}
		if r.PeriodStart, err = ParseDate(start); err != nil {
			return nil, err
		}
		if r.PeriodEnd, err = ParseDate(end); err != nil {
			return nil, err
		}
		r.EvaluatedAt = parseTimestamp(evaluated)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading accuracy rows: %w", err)
	}

	return records, nil
}

// CountAccuracyRecords 准确率记录总数
func (s *DB) CountAccuracyRecords(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accuracy_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accuracy records: %w", err)
	}
	return count, nil
}

// InsertAnalysisHistory 写入分析审计日志
func (s *DB) InsertAnalysisHistory(ctx context.Context, entry *AnalysisHistory) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = TruncateSecond(s.now())
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO analysis_history (run_id, calculation_type,
		parameters, result_summary, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.RunID, entry.CalculationType, entry.Parameters, entry.ResultSummary,
		formatTimestamp(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save analysis history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetAnalysisHistoryByRunIDs 按运行ID获取审计日志
func (s *DB) GetAnalysisHistoryByRunIDs(ctx context.Context, runIDs []string) ([]AnalysisHistory, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(runIDs)), ",")
	args := make([]interface{}, len(runIDs))
	for i, id := range runIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, calculation_type, parameters,
		result_summary, created_at FROM analysis_history
		WHERE run_id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis history: %w", err)
	}
	defer rows.Close()

	var entries []AnalysisHistory
	for rows.Next() {
		var h AnalysisHistory
		var createdAt string
		if err := rows.Scan(&h.ID, &h.RunID, &h.CalculationType, &h.Parameters,
			&h.ResultSummary, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis history: %w", err)
		}
		h.CreatedAt = parseTimestamp(createdAt)
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading analysis history rows: %w", err)
	}

	return entries, nil
}
