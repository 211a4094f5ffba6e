package repository

import (
	"context"
	"database/sql"
	"errors"
)

// getOptional loads a single row into a T. A missing row is (nil, nil).
func getOptional[T any](ctx context.Context, db sqlxDB, query string, args ...any) (*T, error) {
	var row T
	err := db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
