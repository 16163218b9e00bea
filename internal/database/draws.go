package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const drawColumns = `id, draw_date, day_of_week, first_prize, first_prize_last3,
	three_front, three_back, last2, created_at, updated_at`

// UpsertDraw 保存开奖数据，同一开奖日重复写入视为更正
func (s *DB) UpsertDraw(ctx context.Context, record *DrawRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	date := TruncateDate(record.DrawDate)
	now := formatTimestamp(s.now())

	_, err := s.db.ExecContext(ctx, s.dialect.upsertDraw,
		FormatDate(date), WeekdayName(date.Weekday()), date.Day(), int(date.Month()),
		nullString(record.FirstPrize), nullString(record.FirstPrizeLast3),
		nullString(record.ThreeFront), nullString(record.ThreeBack), nullString(record.Last2),
		now, now)
	if err != nil {
		return fmt.Errorf("failed to save draw %s: %w", FormatDate(date), err)
	}
	return nil
}

// GetDraw 根据开奖日期获取开奖数据，不存在时返回 nil, nil
func (s *DB) GetDraw(ctx context.Context, drawDate string) (*DrawRecord, error) {
	query := `SELECT ` + drawColumns + ` FROM lottery_draws WHERE draw_date = ?`

	record, err := scanDraw(s.db.QueryRowContext(ctx, query, drawDate))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draw by date: %w", err)
	}
	return record, nil
}

// LatestDraw 获取最新一期开奖数据，没有数据时返回 nil, nil
func (s *DB) LatestDraw(ctx context.Context) (*DrawRecord, error) {
	query := `SELECT ` + drawColumns + ` FROM lottery_draws ORDER BY draw_date DESC LIMIT 1`

	record, err := scanDraw(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest draw: %w", err)
	}
	return record, nil
}

// QueryDraws 按筛选条件查询指定字段已公布的开奖记录，按日期倒序；field 为空时不限制字段
func (s *DB) QueryDraws(ctx context.Context, field DigitType, filter DrawFilter) ([]DrawRecord, error) {
	var (
		where []string
		args  []interface{}
	)

	if field != "" {
		if !field.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDigitType, field)
		}
		// field 已校验，可以直接拼接列名
		where = append(where, fmt.Sprintf("%s IS NOT NULL AND %s <> ''", field, field))
	}
	if !filter.From.IsZero() {
		where = append(where, "draw_date >= ?")
		args = append(args, FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "draw_date <= ?")
		args = append(args, FormatDate(filter.To))
	}
	if filter.Weekday != nil {
		where = append(where, "day_of_week = ?")
		args = append(args, WeekdayName(*filter.Weekday))
	}
	if filter.DayOfMonth != 0 {
		where = append(where, "day_of_month = ?")
		args = append(args, filter.DayOfMonth)
	}
	if filter.Month != 0 {
		where = append(where, "month = ?")
		args = append(args, filter.Month)
	}

	query := `SELECT ` + drawColumns + ` FROM lottery_draws`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY draw_date DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query draws: %w", err)
	}
	defer rows.Close()

	var records []DrawRecord
	for rows.Next() {
		record, err := scanDraw(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draw: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading draw rows: %w", err)
	}

	return records, nil
}

// CountDraws 开奖记录总数
func (s *DB) CountDraws(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lottery_draws`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count draws: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDraw(row rowScanner) (*DrawRecord, error) {
	var record DrawRecord
	var drawDate, createdAt, updatedAt string
	var firstPrize, last3, threeFront, threeBack, last2 sql.NullString
	err := row.Scan(&record.ID, &drawDate, &record.DayOfWeek, &firstPrize, &last3,
		&threeFront, &threeBack, &last2, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	date, err := ParseDate(drawDate)
	if err != nil {
		return nil, err
	}
	record.DrawDate = date
	record.FirstPrize = firstPrize.String
	record.FirstPrizeLast3 = last3.String
	record.ThreeFront = threeFront.String
	record.ThreeBack = threeBack.String
	record.Last2 = last2.String
	record.CreatedAt = parseTimestamp(createdAt)
	record.UpdatedAt = parseTimestamp(updatedAt)
	return &record, nil
}
