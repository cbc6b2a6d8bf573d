package domain

import "time"

// Credentials is a username/password pair for the target platform.
type Credentials struct {
	Username string
	Password string
}

// ArtemisAccount is a stored student or admin account on one Artemis
// deployment. AccountIndex is the position referenced by user-range
// expressions; it is zero for admin accounts.
type ArtemisAccount struct {
	ID           string
	Server       string
	AccountIndex int
	Username     string
	// Password is AES-GCM encrypted at rest.
	Password  []byte `json:"-"`
	IsAdmin   bool
	CreatedAt time.Time
}
