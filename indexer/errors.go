package indexer

import "errors"

var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEntityFatal      = errors.New("token indexing failed")
	ErrAlreadyRunning   = errors.New("indexer is already running")
)
