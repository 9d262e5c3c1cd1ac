// Package storage abstracts file persistence for ticket attachments and
// profile photos: a byte stream goes in, a stable retrieval path comes out.
package storage

import "io"

type Store interface {
	// Save writes the stream under dir with a collision-free name derived
	// from name, returning the stable path and the number of bytes written.
	Save(dir, name string, r io.Reader) (string, int64, error)
	// Open returns the stored content for a path previously returned by Save.
	Open(path string) (io.ReadCloser, error)
	// Delete removes the stored file. Callers delete explicitly whenever an
	// attachment or photo is replaced or removed.
	Delete(path string) error
	Exists(path string) bool
}
