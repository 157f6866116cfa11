package vectorizer

import (
	"errors"

	"github.com/helixml/vectorizer/application/service"
)

// Exported errors for library consumers.
var (
	// ErrNoDatabase indicates no database was configured.
	ErrNoDatabase = errors.New("vectorizer: no database configured")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = service.ErrClientClosed
)
