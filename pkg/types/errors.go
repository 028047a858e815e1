package types

import "errors"

// ErrUnknownDocument is returned for a document id that is not open.
var ErrUnknownDocument = errors.New("unknown document")
