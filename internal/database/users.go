/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cointipd/internal/models"
	"cointipd/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func (s *Service) GetUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, queryGetUser, strings.ToLower(username)).Scan(
		&user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, username)
		}
		zap.L().Error("Failed to query user", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("unable to query user: %w", err)
	}
	return &user, nil
}

func (s *Service) CreateUser(ctx context.Context, username string) error {
	zap.L().Info("Creating user", zap.String("username", username))

	_, err := s.db.ExecContext(ctx, queryInsertUser, strings.ToLower(username))
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", store.ErrUserExists, username)
		}
		zap.L().Error("Failed to insert user", zap.String("username", username), zap.Error(err))
		return fmt.Errorf("unable to insert user: %w", err)
	}
	return nil
}

// DeleteUser removes the user row together with its address rows. This is
// the compensating rollback for a registration that failed partway.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	name := strings.ToLower(username)
	zap.L().Warn("Rolling back user registration", zap.String("username", name))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, queryDeleteUserAddresses, name); err != nil {
		return fmt.Errorf("unable to delete addresses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryDeleteUser, name); err != nil {
		return fmt.Errorf("unable to delete user: %w", err)
	}

	return tx.Commit()
}

func (s *Service) StoreAddress(ctx context.Context, username, coin, address string) error {
	_, err := s.db.ExecContext(ctx, queryInsertAddress,
		uuid.New().String(), strings.ToLower(username), coin, address)
	if err != nil {
		zap.L().Error("Failed to store address",
			zap.String("username", username),
			zap.String("coin", coin),
			zap.Error(err))
		return fmt.Errorf("unable to store address: %w", err)
	}

	zap.L().Info("Stored deposit address",
		zap.String("username", username),
		zap.String("coin", coin),
		zap.String("address", address))
	return nil
}

func (s *Service) GetAddress(ctx context.Context, username, coin string) (string, error) {
	var address string
	err := s.db.QueryRowContext(ctx, queryGetAddress, strings.ToLower(username), coin).Scan(&address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("unable to query address: %w", err)
	}
	return address, nil
}

func (s *Service) CountAddresses(ctx context.Context, username string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, queryCountAddresses, strings.ToLower(username)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unable to count addresses: %w", err)
	}
	return count, nil
}
