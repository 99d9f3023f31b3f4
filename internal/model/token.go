package model

import "time"

// Tokens is an issued access token with its expiry.
type Tokens struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
