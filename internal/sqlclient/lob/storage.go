// Package lob implements the spillable large-object buffer used by the SQL
// client layer. Data starts in memory and transparently migrates to a
// temporary file once it outgrows the configured threshold; live readers and
// writers stay valid across the migration.
package lob

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by any operation on a closed buffer or blob.
var ErrClosed = errors.New("lob: closed")

// errReadOnly signals that the current storage cannot be written; the buffer
// reacts by promoting to a writable in-memory storage and retrying.
var errReadOnly = errors.New("lob: storage is read-only")

// RangeError reports a position or length outside the buffer bounds.
type RangeError struct {
	Op    string
	Pos   int64
	Len   int64
	Total int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("lob: %s out of range [pos=%d, len=%d, total=%d]", e.Op, e.Pos, e.Len, e.Total)
}

// pointer is an opaque position handle. The context caches storage-specific
// location state and is rebuilt from pos after a storage switch.
type pointer struct {
	pos int64
	ctx storageContext
}

type storageContext interface {
	copyContext() storageContext
}

func (p *pointer) set(other *pointer) {
	p.pos = other.pos
	if other.ctx != nil {
		p.ctx = other.ctx.copyContext()
	} else {
		p.ctx = nil
	}
}

// storage is the tier behind a buffer: read-only memory, growable memory
// chunks, or a temporary file. Transitions are one way; see Buffer.
type storage interface {
	totalCount() int64
	newPointer() *pointer
	// readAt copies bytes at the pointer into dst, advancing the pointer.
	// Returns 0 at end of data.
	readAt(p *pointer, dst []byte) (int, error)
	readByteAt(p *pointer) (byte, bool, error)
	writeAt(p *pointer, src []byte) error
	writeByteAt(p *pointer, b byte) error
	advance(p *pointer, n int64)
	truncate(n int64) error
	close() error
}
