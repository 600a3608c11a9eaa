package storage

import (
	"fmt"

	"idforge/pkg/platform/sentinel"
)

// ErrNotFound keeps absent-key results consistent across in-memory and Redis
// implementations.
var ErrNotFound = fmt.Errorf("storage key: %w", sentinel.ErrNotFound)
