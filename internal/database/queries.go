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

const (
	// Action queries
	queryInsertAction = `
		INSERT INTO actions (
			id, type, state, from_user, to_user, to_addr, coin, fiat,
			coin_amount, fiat_amount, txid, msg_id, msg_link, subreddit, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryClaimPendingAction = `
		UPDATE actions
		SET state = ?
		WHERE msg_id = ? AND type = ? AND state = 'pending'`

	querySelectActions = `
		SELECT id, type, state, from_user, to_user, to_addr, coin, fiat,
		       coin_amount, fiat_amount, txid, msg_id, msg_link, subreddit, created_at
		FROM actions`

	queryPendingTipsOlderThan = `
		SELECT id, type, state, from_user, to_user, to_addr, coin, fiat,
		       coin_amount, fiat_amount, txid, msg_id, msg_link, subreddit, created_at
		FROM actions
		WHERE type = 'givetip' AND state = 'pending' AND created_at < ?
		ORDER BY created_at`

	// User queries
	queryGetUser = `
		SELECT username, created_at
		FROM users
		WHERE username = ?`

	queryInsertUser = `
		INSERT INTO users (username) VALUES (?)`

	queryDeleteUser = `
		DELETE FROM users WHERE username = ?`

	queryDeleteUserAddresses = `
		DELETE FROM addresses WHERE username = ?`

	// Address queries
	queryInsertAddress = `
		INSERT INTO addresses (id, username, coin, address)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(username, coin) DO UPDATE SET address = excluded.address`

	queryGetAddress = `
		SELECT address
		FROM addresses
		WHERE username = ? AND coin = ?`

	queryCountAddresses = `
		SELECT COUNT(*)
		FROM addresses
		WHERE username = ?`

	// Settings queries
	queryGetSetting = `
		SELECT value FROM settings WHERE key = ?`

	querySetSetting = `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
)
