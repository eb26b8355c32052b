// Package file implements the file metadata store and the
// presigned-upload lifecycle.
//
// A record is created in StatusPending before any bytes exist in object
// storage. It reaches StatusCompleted only through a storage event
// notification matching its storage key, or StatusFailed through an
// error notification or the reconciliation sweep. Both transitions are
// terminal and the completed transition is idempotent under duplicate
// delivery.
package file

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("file: not found")

// Status is the upload lifecycle state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one logical file owned by one user.
//
// StorageKey is derived from the freshly generated id and never reused,
// so it is unique by construction. SizeBytes is authoritative only when
// Status is StatusCompleted; before that it holds zero.
type Record struct {
	ID          string
	OwnerID     string
	DisplayName string
	ContentType string
	StorageKey  string
	SizeBytes   int64
	Status      Status
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
