package repository

import "errors"

// ErrNotFound is returned when a requested record is not found in the repository.
// This abstracts away the underlying storage implementation (SQL, NoSQL, etc.)
// from the service layer.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateVote is returned when a voter already has a vote for the same
// category and period, whether detected by lookup or by the unique index.
var ErrDuplicateVote = errors.New("duplicate vote")

// ErrPoolLocked is returned when a reward pool that has paid out is edited.
var ErrPoolLocked = errors.New("reward pool is locked")
