package model

import "time"

// User is the recipient projection read by the dispatch loop.
// The table is owned by the wider platform; this service never writes it.
type User struct {
	ID              int64     `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	Role            string    `db:"role" json:"role"` // USER|ADMIN
	OAuthProvider   *string   `db:"oauth_provider" json:"oauth_provider,omitempty"`
	IsPhoneVerified bool      `db:"is_phone_verified" json:"is_phone_verified"`
	Gender          *string   `db:"gender" json:"gender,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
