package lob

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxMemory = 1 << 20

func TestBlob_Length(t *testing.T) {
	blob := NewBlobWith(testMaxMemory, []byte("abc"))
	defer blob.Free()

	n, err := blob.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestBlob_Bytes(t *testing.T) {
	blob := NewBlobWith(testMaxMemory, []byte("0123456789"))
	defer blob.Free()

	data, err := blob.Bytes(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), data)

	data, err = blob.Bytes(8, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("789"), data, "length clamps to available bytes")

	var rangeErr *RangeError
	_, err = blob.Bytes(0, 1)
	assert.ErrorAs(t, err, &rangeErr)
	_, err = blob.Bytes(11, 1)
	assert.ErrorAs(t, err, &rangeErr)
	_, err = blob.Bytes(1, -1)
	assert.ErrorAs(t, err, &rangeErr)
}

func TestBlob_SetBytes(t *testing.T) {
	blob := NewBlob(testMaxMemory)
	defer blob.Free()

	n, err := blob.SetBytes(1, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Overwrite the middle and extend past the end.
	_, err = blob.SetBytes(4, []byte("LOWORLD"))
	require.NoError(t, err)

	length, _ := blob.Length()
	assert.Equal(t, int64(10), length)

	data, err := blob.Bytes(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("helLOWORLD"), data)

	var rangeErr *RangeError
	_, err = blob.SetBytes(12, []byte("x"))
	assert.ErrorAs(t, err, &rangeErr, "cannot write past end + 1")
}

func TestBlob_BinaryStreamRange(t *testing.T) {
	blob := NewBlobWith(testMaxMemory, []byte("0123456789"))
	defer blob.Free()

	reader, err := blob.BinaryStreamRange(3, 4)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), data)

	var rangeErr *RangeError
	_, err = blob.BinaryStreamRange(3, 9)
	assert.ErrorAs(t, err, &rangeErr)
}

func TestBlob_Position(t *testing.T) {
	blob := NewBlobWith(testMaxMemory, []byte("abcabcabd"))
	defer blob.Free()

	// The partial match at position 1 must backtrack and find the full match
	// at position 4.
	pos, err := blob.Position([]byte("abcabd"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)

	pos, err = blob.Position([]byte("abcabd"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), pos)
}

func TestBlob_PositionEdgeCases(t *testing.T) {
	blob := NewBlobWith(testMaxMemory, []byte("abcabc"))
	defer blob.Free()

	pos, err := blob.Position([]byte("abc"), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos, "smallest match index at or after start")

	pos, err = blob.Position([]byte(""), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), pos, "empty pattern")

	pos, err = blob.Position([]byte("abcabcx"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), pos, "pattern longer than blob")

	pos, err = blob.Position([]byte("abc"), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), pos, "start past end")

	var rangeErr *RangeError
	_, err = blob.Position([]byte("abc"), 0)
	assert.ErrorAs(t, err, &rangeErr, "start below one")

	pos, err = blob.Position([]byte("abc"), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos, "match exactly at start")
}

func TestBlob_PositionRepeatedPrefix(t *testing.T) {
	blob := NewBlobWith(testMaxMemory, []byte("aaab"))
	defer blob.Free()

	pos, err := blob.Position([]byte("aab"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)
}

func TestBlob_Truncate(t *testing.T) {
	blob := NewBlobWith(testMaxMemory, []byte("0123456789"))
	defer blob.Free()

	require.NoError(t, blob.Truncate(4))
	length, _ := blob.Length()
	assert.Equal(t, int64(4), length)

	var rangeErr *RangeError
	assert.ErrorAs(t, blob.Truncate(5), &rangeErr)
}

func TestBlob_UseAfterFree(t *testing.T) {
	blob := NewBlobWith(testMaxMemory, []byte("abc"))
	require.NoError(t, blob.Free())

	_, err := blob.Length()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = blob.Bytes(1, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = blob.Position([]byte("a"), 1)
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, blob.Free(), "double free is harmless")
}

func TestBlob_ReadOnlySourceSpillsToDisk(t *testing.T) {
	blob := NewBlobReadOnly(4, []byte("abcd"))
	defer blob.Free()

	// Growing a read-only blob past the memory limit spills straight to the
	// temp file; the borrowed array is never copied into writable memory.
	_, err := blob.SetBytes(5, []byte("efgh"))
	require.NoError(t, err)

	data, err := blob.Bytes(1, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefgh"), data)
}
