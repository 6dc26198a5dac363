package models

import "github.com/google/uuid"

// User is the persisted account behind a Client. Guests are ephemeral users
// minted on first contact; they can later be claimed with credentials.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	IsEphemeral bool `json:"is_ephemeral"`
	IsAdmin     bool `json:"is_admin"`

	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	// Glicko-2 rating state, updated after each recorded match.
	Rating     int     `json:"rating"`
	RD         float64 `json:"rd"`
	Volatility float64 `json:"volatility"`
}
