package models

import (
	"database/sql"
	"time"
)

// Device is a registered mobile client allowed to enqueue mutations.
type Device struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Platform     string       `json:"platform"`
	SecretHash   string       `json:"-"`
	CreatedDate  time.Time    `json:"created_date"`
	LastSeenDate sql.NullTime `json:"-"`
}
