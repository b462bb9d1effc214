package repository

import "errors"

// ErrNotFound indicates the requested record does not exist. Usecases translate
// it into their own sentinel errors so handlers never leak storage details.
var ErrNotFound = errors.New("repository: not found")
