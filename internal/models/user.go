package models

import "time"

// User is a registered account row. Usernames are normalized to lowercase
// for storage and lookup.
type User struct {
	Username  string    `db:"username"`
	CreatedAt time.Time `db:"created_at"`
}

// Address is a user's deposit address for one coin.
type Address struct {
	Id        string    `db:"id"`
	Username  string    `db:"username"`
	Coin      string    `db:"coin"`
	Address   string    `db:"address"`
	CreatedAt time.Time `db:"created_at"`
}
