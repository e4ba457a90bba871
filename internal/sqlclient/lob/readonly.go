package lob

// readOnlyStorage is a view over a borrowed byte slice. Writes and truncation
// report errReadOnly, which makes the owning buffer copy the data into a
// writable memory storage first.
type readOnlyStorage struct {
	data []byte
}

func newReadOnlyStorage(data []byte) *readOnlyStorage {
	return &readOnlyStorage{data: data}
}

func (s *readOnlyStorage) totalCount() int64 {
	return int64(len(s.data))
}

func (s *readOnlyStorage) newPointer() *pointer {
	return &pointer{}
}

func (s *readOnlyStorage) readByteAt(p *pointer) (byte, bool, error) {
	if p.pos >= int64(len(s.data)) {
		return 0, false, nil
	}
	b := s.data[p.pos]
	p.pos++
	return b, true, nil
}

func (s *readOnlyStorage) readAt(p *pointer, dst []byte) (int, error) {
	if p.pos >= int64(len(s.data)) {
		return 0, nil
	}
	n := copy(dst, s.data[p.pos:])
	p.pos += int64(n)
	return n, nil
}

func (s *readOnlyStorage) writeAt(*pointer, []byte) error {
	return errReadOnly
}

func (s *readOnlyStorage) writeByteAt(*pointer, byte) error {
	return errReadOnly
}

func (s *readOnlyStorage) advance(p *pointer, n int64) {
	p.pos += n
}

func (s *readOnlyStorage) truncate(int64) error {
	return errReadOnly
}

func (s *readOnlyStorage) close() error {
	s.data = nil
	return nil
}
