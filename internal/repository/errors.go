package repository

import "errors"

// ErrNotFound is returned when a simulation, run, schedule, subscriber or
// account does not exist. pgx.ErrNoRows never crosses the repository
// boundary.
var ErrNotFound = errors.New("repository: not found")
