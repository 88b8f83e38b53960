package history

import (
	"context"
	"errors"
)

// ErrExists is returned by Store.Create when the name is already taken.
var ErrExists = errors.New("run file already exists")

// Store is a handle to the historical run-file collection. All history reads
// and writes go through a Store so that backends can be swapped (local
// directory, S3 bucket, SQL database, memory for tests).
type Store interface {
	// List returns the names of all stored files in lexical order. An empty
	// or not yet created store returns no names and no error.
	List(ctx context.Context) ([]string, error)

	// Get returns the contents of the named file.
	Get(ctx context.Context, name string) ([]byte, error)

	// Create stores data under name. It never overwrites: if name is
	// already present it returns an error matching ErrExists.
	Create(ctx context.Context, name string, data []byte) error

	// Delete removes the named file. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error

	// Location describes the store for diagnostics.
	Location() string
}
