package http

import (
	"github.com/allisson/possync/internal/errors"
)

var errInvalidLimit = errors.New("limit must be an integer between 1 and 100")
