package models

import "time"

// RefreshToken is a stored refresh token. Token holds the hash of the
// value handed to the client, never the value itself.
type RefreshToken struct {
	UserID  string
	Token   string
	Expires time.Time
}
