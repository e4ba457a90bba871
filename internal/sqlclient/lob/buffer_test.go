package lob

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAt(t *testing.T, buf *Buffer, pos int64, data []byte) {
	t.Helper()
	w, err := buf.OpenWrite(pos)
	require.NoError(t, err)
	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func readAll(t *testing.T, buf *Buffer) []byte {
	t.Helper()
	data, err := buf.Data()
	require.NoError(t, err)
	return data
}

func TestBuffer_RoundTrip(t *testing.T) {
	buf := New(1 << 20)
	defer buf.Close()

	payload := bytes.Repeat([]byte("embergrid"), 100)

	// Write in uneven slices that collectively cover the payload.
	for _, cut := range []struct{ from, to int }{
		{0, 1}, {1, 7}, {7, 64}, {64, 300}, {300, len(payload)},
	} {
		writeAt(t, buf, int64(cut.from), payload[cut.from:cut.to])
	}

	assert.Equal(t, int64(len(payload)), buf.TotalCount())
	assert.Equal(t, payload, readAll(t, buf))
}

func TestBuffer_OverlappingWrites(t *testing.T) {
	buf := New(1 << 20)
	defer buf.Close()

	writeAt(t, buf, 0, []byte("aaaaaaaaaa"))
	writeAt(t, buf, 3, []byte("bbb"))

	assert.Equal(t, []byte("aaabbbaaaa"), readAll(t, buf))
}

func TestBuffer_SpillOnThreshold(t *testing.T) {
	buf := New(16)
	defer buf.Close()

	writeAt(t, buf, 0, []byte("0123456789"))
	assert.False(t, buf.SpilledToDisk())

	// Reader opened before the spill and not yet consumed.
	reader, err := buf.OpenRead()
	require.NoError(t, err)

	writeAt(t, buf, 10, []byte("abcdefghij"))
	assert.True(t, buf.SpilledToDisk())
	assert.Equal(t, int64(20), buf.TotalCount())

	drained, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdefghij"), drained)

	// Promotion is monotone: truncation below the threshold does not return
	// the buffer to memory.
	require.NoError(t, buf.Truncate(5))
	assert.True(t, buf.SpilledToDisk())
	assert.Equal(t, []byte("01234"), readAll(t, buf))
}

func TestBuffer_LiveWriterSurvivesSpill(t *testing.T) {
	buf := New(8)
	defer buf.Close()

	w, err := buf.OpenWrite(0)
	require.NoError(t, err)

	// The same writer crosses the threshold mid-stream.
	for i := 0; i < 4; i++ {
		_, err = w.Write([]byte("abcd"))
		require.NoError(t, err)
	}

	assert.True(t, buf.SpilledToDisk())
	assert.Equal(t, []byte("abcdabcdabcdabcd"), readAll(t, buf))
}

func TestBuffer_ReadOnlyPromotesOnWrite(t *testing.T) {
	borrowed := []byte("immutable")
	buf := NewReadOnly(1<<20, borrowed)
	defer buf.Close()

	assert.Equal(t, []byte("immutable"), readAll(t, buf))

	writeAt(t, buf, 0, []byte("X"))

	assert.Equal(t, []byte("Xmmutable"), readAll(t, buf))
	assert.Equal(t, []byte("immutable"), borrowed, "borrowed array is copied, not modified")
}

func TestBuffer_ReadOnlyTruncatePromotes(t *testing.T) {
	buf := NewReadOnly(1<<20, []byte("0123456789"))
	defer buf.Close()

	require.NoError(t, buf.Truncate(4))
	assert.Equal(t, []byte("0123"), readAll(t, buf))
}

func TestBuffer_UnboundedReaderSeesLaterWrites(t *testing.T) {
	buf := New(1 << 20)
	defer buf.Close()

	writeAt(t, buf, 0, []byte("one"))

	reader, err := buf.OpenRead()
	require.NoError(t, err)
	head := make([]byte, 3)
	_, err = io.ReadFull(reader, head)
	require.NoError(t, err)

	writeAt(t, buf, 3, []byte("two"))

	tail, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), tail)
}

func TestBuffer_BoundedReader(t *testing.T) {
	buf := New(1 << 20)
	defer buf.Close()

	writeAt(t, buf, 0, []byte("0123456789"))

	reader, err := buf.OpenReadRange(2, 5)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("23456"), data)
}

func TestBuffer_MarkReset(t *testing.T) {
	buf := New(1 << 20)
	defer buf.Close()

	writeAt(t, buf, 0, []byte("abcdef"))

	reader, err := buf.OpenRead()
	require.NoError(t, err)

	b, err := reader.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('a'), b)

	reader.Mark()
	for i := 0; i < 3; i++ {
		_, err = reader.ReadByte()
		require.NoError(t, err)
	}

	reader.Reset()
	b, err = reader.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('b'), b)
}

func TestBuffer_RangeErrors(t *testing.T) {
	buf := New(1 << 20)
	defer buf.Close()

	writeAt(t, buf, 0, []byte("0123456789"))

	var rangeErr *RangeError

	_, err := buf.OpenReadRange(-1, 1)
	assert.ErrorAs(t, err, &rangeErr)

	_, err = buf.OpenReadRange(10, 1)
	assert.ErrorAs(t, err, &rangeErr)

	_, err = buf.OpenReadRange(5, 6)
	assert.ErrorAs(t, err, &rangeErr)

	_, err = buf.OpenWrite(11)
	assert.ErrorAs(t, err, &rangeErr)

	_, err = buf.OpenWrite(-1)
	assert.ErrorAs(t, err, &rangeErr)

	assert.ErrorAs(t, buf.Truncate(11), &rangeErr)
	assert.ErrorAs(t, buf.Truncate(-1), &rangeErr)
}

func TestBuffer_UseAfterClose(t *testing.T) {
	buf := New(1 << 20)
	writeAt(t, buf, 0, []byte("abc"))

	reader, err := buf.OpenRead()
	require.NoError(t, err)
	writer, err := buf.OpenWrite(0)
	require.NoError(t, err)

	require.NoError(t, buf.Close())

	_, err = buf.OpenRead()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = buf.OpenWrite(0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, buf.Truncate(0), ErrClosed)

	_, err = reader.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = writer.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)

	// Double close is harmless.
	assert.NoError(t, buf.Close())
}

func TestBuffer_SharedStorage(t *testing.T) {
	buf := New(1 << 20)
	defer buf.Close()

	writeAt(t, buf, 0, []byte("shared"))

	other := Shared(buf)
	assert.Equal(t, []byte("shared"), readAll(t, other))
}

func TestBuffer_WrapExistingAboveThresholdStaysInMemory(t *testing.T) {
	// Wrapped data above the limit starts in memory; the first write spills
	// it.
	data := bytes.Repeat([]byte("x"), 32)
	buf := NewWith(16, data)
	defer buf.Close()

	assert.False(t, buf.SpilledToDisk())

	writeAt(t, buf, 32, []byte("y"))
	assert.True(t, buf.SpilledToDisk())
	assert.Equal(t, int64(33), buf.TotalCount())
}
