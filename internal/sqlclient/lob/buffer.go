package lob

import (
	"runtime"
)

// Buffer is a seekable binary buffer storing data in memory or in a temporary
// file depending on size.
//
// Data starts in memory. Before each write, if the write's end position or
// the current size exceeds maxMemoryBytes, the content is spilled to a
// temporary file; the buffer never returns to memory mode afterwards, even
// when truncated below the threshold.
//
// A buffer wrapping a borrowed byte slice starts read-only; the first write
// copies the data into a writable memory storage, or straight into the
// temporary file when that write spills.
//
// Readers observe writes made through any live writer, including writers
// created before the reader. Readers and writers stay valid across storage
// promotion. The buffer is not safe for concurrent use.
type Buffer struct {
	storage        storage
	maxMemoryBytes int64
	closed         bool
}

// New creates an empty buffer.
func New(maxMemoryBytes int64) *Buffer {
	return &Buffer{storage: newMemoryStorage(nil), maxMemoryBytes: maxMemoryBytes}
}

// NewWith creates a buffer owning the given data in read-write mode.
func NewWith(maxMemoryBytes int64, data []byte) *Buffer {
	return &Buffer{storage: newMemoryStorage(data), maxMemoryBytes: maxMemoryBytes}
}

// NewReadOnly creates a buffer wrapping borrowed data. The slice is not copied
// until the first write.
func NewReadOnly(maxMemoryBytes int64, data []byte) *Buffer {
	return &Buffer{storage: newReadOnlyStorage(data), maxMemoryBytes: maxMemoryBytes}
}

// Shared creates a buffer sharing the other buffer's storage.
func Shared(other *Buffer) *Buffer {
	return &Buffer{storage: other.storage, maxMemoryBytes: other.maxMemoryBytes}
}

// TotalCount returns the number of bytes in the buffer.
func (b *Buffer) TotalCount() int64 {
	return b.storage.totalCount()
}

// SpilledToDisk reports whether the buffer has migrated to a temporary file.
func (b *Buffer) SpilledToDisk() bool {
	_, ok := b.storage.(*tempFileStorage)
	return ok
}

// OpenRead returns an unbounded reader over the whole buffer. The reader
// observes data appended after its creation.
func (b *Buffer) OpenRead() (*Reader, error) {
	if b.closed {
		return nil, ErrClosed
	}
	return b.newReader(0, -1), nil
}

// OpenReadRange returns a reader over length bytes starting at the zero-based
// position pos.
func (b *Buffer) OpenReadRange(pos, length int64) (*Reader, error) {
	if b.closed {
		return nil, ErrClosed
	}
	total := b.storage.totalCount()
	if pos < 0 || pos >= total || length < 0 || length > total-pos {
		return nil, &RangeError{Op: "read", Pos: pos, Len: length, Total: total}
	}
	return b.newReader(pos, length), nil
}

// OpenWrite returns a writer starting at the zero-based position pos, which
// must not exceed the current size.
func (b *Buffer) OpenWrite(pos int64) (*Writer, error) {
	if b.closed {
		return nil, ErrClosed
	}
	total := b.storage.totalCount()
	if pos < 0 || pos > total {
		return nil, &RangeError{Op: "write", Pos: pos, Total: total}
	}
	cur := b.storage.newPointer()
	if pos > 0 {
		b.storage.advance(cur, pos)
	}
	return &Writer{buf: b, cur: cur}, nil
}

// Truncate shortens the buffer to length bytes.
func (b *Buffer) Truncate(length int64) error {
	if b.closed {
		return ErrClosed
	}
	total := b.storage.totalCount()
	if length < 0 || length > total {
		return &RangeError{Op: "truncate", Pos: length, Total: total}
	}
	err := b.storage.truncate(length)
	if err == errReadOnly {
		if err = b.promoteToReadWrite(); err != nil {
			return err
		}
		err = b.storage.truncate(length)
	}
	return err
}

// Data returns a copy of the whole buffer content.
func (b *Buffer) Data() ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	out := make([]byte, b.storage.totalCount())
	p := b.storage.newPointer()
	read := 0
	for read < len(out) {
		n, err := b.storage.readAt(p, out[read:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		read += n
	}
	return out[:read], nil
}

// Close frees the buffer resources. Any temporary file is removed.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.storage.close()
}

func (b *Buffer) newReader(start, limit int64) *Reader {
	cur := b.storage.newPointer()
	if start > 0 {
		b.storage.advance(cur, start)
	}
	marked := b.storage.newPointer()
	marked.set(cur)
	return &Reader{buf: b, cur: cur, start: start, limit: limit, marked: marked}
}

// promoteToReadWrite copies a read-only storage into a writable memory storage.
func (b *Buffer) promoteToReadWrite() error {
	if _, ok := b.storage.(*readOnlyStorage); !ok {
		return nil
	}
	data, err := b.Data()
	if err != nil {
		return err
	}
	b.storage.close()
	b.storage = newMemoryStorage(data)
	return nil
}

// spillToFile drains the buffer into a new temporary file storage.
func (b *Buffer) spillToFile() error {
	if _, ok := b.storage.(*tempFileStorage); ok {
		return nil
	}
	src := b.newReader(0, -1)
	newStorage, err := newTempFileStorage(src)
	if err != nil {
		return err
	}
	// Remove the file if the storage is garbage-collected without Close.
	// Finalizers do not run at process exit, so a file still open then is
	// not removed.
	runtime.SetFinalizer(newStorage, func(s *tempFileStorage) { s.close() })
	b.storage.close()
	b.storage = newStorage
	return nil
}
