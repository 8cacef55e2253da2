package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns the stored value for key, or the empty string when the
// key has never been set.
func (s *Service) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, queryGetSetting, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("unable to query setting %q: %w", key, err)
	}
	return value, nil
}

func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, querySetSetting, key, value); err != nil {
		return fmt.Errorf("unable to set setting %q: %w", key, err)
	}
	return nil
}
