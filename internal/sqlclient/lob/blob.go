package lob

import (
	"io"

	"github.com/pkg/errors"
)

// Blob exposes a buffer with the one-based addressing of the SQL client
// surface. All positions are 1-based; Free releases the underlying buffer.
type Blob struct {
	buf *Buffer
}

func NewBlob(maxMemoryBytes int64) *Blob {
	return &Blob{buf: New(maxMemoryBytes)}
}

// NewBlobWith creates a blob owning the given data.
func NewBlobWith(maxMemoryBytes int64, data []byte) *Blob {
	return &Blob{buf: NewWith(maxMemoryBytes, data)}
}

// NewBlobReadOnly creates a blob over borrowed data; the first write copies it.
func NewBlobReadOnly(maxMemoryBytes int64, data []byte) *Blob {
	return &Blob{buf: NewReadOnly(maxMemoryBytes, data)}
}

func (b *Blob) Length() (int64, error) {
	if b.buf == nil {
		return 0, ErrClosed
	}
	return b.buf.TotalCount(), nil
}

// Bytes returns up to length bytes starting at the one-based position pos.
func (b *Blob) Bytes(pos int64, length int) ([]byte, error) {
	if b.buf == nil {
		return nil, ErrClosed
	}
	total := b.buf.TotalCount()
	if pos < 1 || (total > 0 && pos > total) || length < 0 {
		return nil, &RangeError{Op: "getBytes", Pos: pos, Len: int64(length), Total: total}
	}
	idx := pos - 1
	size := int64(length)
	if size > total-idx {
		size = total - idx
	}
	if size == 0 {
		return []byte{}, nil
	}
	reader, err := b.buf.OpenReadRange(idx, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

// BinaryStream returns a reader over the whole blob.
func (b *Blob) BinaryStream() (*Reader, error) {
	if b.buf == nil {
		return nil, ErrClosed
	}
	return b.buf.OpenRead()
}

// BinaryStreamRange returns a reader over length bytes from the one-based pos.
func (b *Blob) BinaryStreamRange(pos, length int64) (*Reader, error) {
	if b.buf == nil {
		return nil, ErrClosed
	}
	total := b.buf.TotalCount()
	if pos < 1 || length < 1 || pos > total || length > total-pos+1 {
		return nil, &RangeError{Op: "getBinaryStream", Pos: pos, Len: length, Total: total}
	}
	return b.buf.OpenReadRange(pos-1, length)
}

// SetBytes writes the given bytes at the one-based position pos and returns
// the number of bytes written.
func (b *Blob) SetBytes(pos int64, data []byte) (int, error) {
	if b.buf == nil {
		return 0, ErrClosed
	}
	if pos < 1 || pos-1 > b.buf.TotalCount() {
		return 0, &RangeError{Op: "setBytes", Pos: pos, Total: b.buf.TotalCount()}
	}
	writer, err := b.buf.OpenWrite(pos - 1)
	if err != nil {
		return 0, err
	}
	return writer.Write(data)
}

// SetBinaryStream returns a writer starting at the one-based position pos.
func (b *Blob) SetBinaryStream(pos int64) (*Writer, error) {
	if b.buf == nil {
		return nil, ErrClosed
	}
	if pos < 1 || pos > b.buf.TotalCount()+1 {
		return nil, &RangeError{Op: "setBinaryStream", Pos: pos, Total: b.buf.TotalCount()}
	}
	return b.buf.OpenWrite(pos - 1)
}

// Position returns the one-based index of the first occurrence of pattern at
// or after the one-based position start, or -1 when there is no match, the
// pattern is empty or longer than the blob, or start is past the end.
func (b *Blob) Position(pattern []byte, start int64) (int64, error) {
	if b.buf == nil {
		return 0, ErrClosed
	}
	total := b.buf.TotalCount()
	if start < 1 {
		return 0, &RangeError{Op: "position", Pos: start, Total: total}
	}
	if len(pattern) == 0 || int64(len(pattern)) > total || start > total {
		return -1, nil
	}

	reader, err := b.buf.OpenReadRange(start-1, total-start+1)
	if err != nil {
		return 0, err
	}

	// Naive scan with backtracking: mark the reader at a candidate match and
	// reset on mismatch, resuming one byte past the candidate start.
	matched := 0
	pos := start - 1
	started := false
	for {
		cur, err := reader.ReadByte()
		if err == io.EOF {
			return -1, nil
		}
		if err != nil {
			return 0, err
		}
		if cur == pattern[matched] {
			if !started {
				started = true
				reader.Mark()
			}
			pos++
			matched++
			if matched == len(pattern) {
				return pos - int64(len(pattern)) + 1, nil
			}
		} else {
			pos = pos - int64(matched) + 1
			matched = 0
			if started {
				started = false
				reader.Reset()
			}
		}
	}
}

// Truncate shortens the blob to length bytes.
func (b *Blob) Truncate(length int64) error {
	if b.buf == nil {
		return ErrClosed
	}
	return b.buf.Truncate(length)
}

// Free releases the blob resources; the blob is unusable afterwards.
func (b *Blob) Free() error {
	if b.buf == nil {
		return nil
	}
	err := b.buf.Close()
	b.buf = nil
	return err
}
