package domain

import (
	"time"
)

type Paste struct {
	ID        PasteID
	URL       string
	Content   []byte
	Size      int
	CreatedAt time.Time
	// Stored is false when the write failed and the failure was swallowed.
	Stored bool
}
