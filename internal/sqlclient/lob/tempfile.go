package lob

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// tempFileStorage keeps data in a file under the system temp directory. The
// file is removed on close and never shrinks the buffer back into memory.
type tempFileStorage struct {
	file  *os.File
	total int64
}

// newTempFileStorage creates the backing file and fills it from src.
func newTempFileStorage(src io.Reader) (*tempFileStorage, error) {
	file, err := os.CreateTemp("", "embergrid-lob-")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	total, err := io.Copy(file, src)
	if err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, errors.WithStack(err)
	}
	return &tempFileStorage{file: file, total: total}, nil
}

func (s *tempFileStorage) totalCount() int64 {
	return s.total
}

func (s *tempFileStorage) newPointer() *pointer {
	return &pointer{}
}

func (s *tempFileStorage) readByteAt(p *pointer) (byte, bool, error) {
	var b [1]byte
	n, err := s.readAt(p, b[:])
	if err != nil || n == 0 {
		return 0, false, err
	}
	return b[0], true, nil
}

func (s *tempFileStorage) readAt(p *pointer, dst []byte) (int, error) {
	if p.pos >= s.total {
		return 0, nil
	}
	if remaining := s.total - p.pos; int64(len(dst)) > remaining {
		dst = dst[:remaining]
	}
	n, err := s.file.ReadAt(dst, p.pos)
	p.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, errors.WithStack(err)
	}
	return n, nil
}

func (s *tempFileStorage) writeByteAt(p *pointer, b byte) error {
	return s.writeAt(p, []byte{b})
}

func (s *tempFileStorage) writeAt(p *pointer, src []byte) error {
	n, err := s.file.WriteAt(src, p.pos)
	p.pos += int64(n)
	if p.pos > s.total {
		s.total = p.pos
	}
	return errors.WithStack(err)
}

func (s *tempFileStorage) advance(p *pointer, n int64) {
	p.pos += n
}

func (s *tempFileStorage) truncate(n int64) error {
	if err := s.file.Truncate(n); err != nil {
		return errors.WithStack(err)
	}
	s.total = n
	return nil
}

func (s *tempFileStorage) close() error {
	name := s.file.Name()
	err := s.file.Close()
	if removeErr := os.Remove(name); err == nil {
		err = removeErr
	}
	return errors.WithStack(err)
}
