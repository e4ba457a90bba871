package lob

// memoryStorage keeps data in a list of chunks, each at least twice the size
// of the previous one, so appends stay amortised O(1) without copying on growth.
type memoryStorage struct {
	chunks [][]byte
	total  int64
}

type memoryContext struct {
	idx int
	off int
}

func (c *memoryContext) copyContext() storageContext {
	return &memoryContext{idx: c.idx, off: c.off}
}

func newMemoryStorage(data []byte) *memoryStorage {
	s := &memoryStorage{}
	if len(data) > 0 {
		s.chunks = append(s.chunks, data)
		s.total = int64(len(data))
	}
	return s
}

func (s *memoryStorage) totalCount() int64 {
	return s.total
}

func (s *memoryStorage) newPointer() *pointer {
	return &pointer{ctx: &memoryContext{}}
}

// context returns the pointer's chunk location, rebuilding it from the linear
// position after a storage switch.
func (s *memoryStorage) context(p *pointer) *memoryContext {
	if ctx, ok := p.ctx.(*memoryContext); ok {
		return ctx
	}
	ctx := &memoryContext{}
	p.ctx = ctx
	pos := p.pos
	p.pos = 0
	if pos > 0 {
		s.advance(p, pos)
	}
	return ctx
}

func (s *memoryStorage) chunk(ctx *memoryContext) []byte {
	if ctx.idx < len(s.chunks) {
		return s.chunks[ctx.idx]
	}
	return nil
}

func (s *memoryStorage) readByteAt(p *pointer) (byte, bool, error) {
	if p.pos >= s.total {
		return 0, false, nil
	}
	ctx := s.context(p)
	b := s.chunk(ctx)[ctx.off]
	s.advance(p, 1)
	return b, true, nil
}

func (s *memoryStorage) readAt(p *pointer, dst []byte) (int, error) {
	ctx := s.context(p)
	read := 0
	for read < len(dst) && p.pos < s.total {
		chunk := s.chunk(ctx)
		toCopy := len(chunk) - ctx.off
		if remaining := int(s.total - p.pos); toCopy > remaining {
			toCopy = remaining
		}
		if toCopy > len(dst)-read {
			toCopy = len(dst) - read
		}
		copy(dst[read:], chunk[ctx.off:ctx.off+toCopy])
		read += toCopy
		s.advance(p, int64(toCopy))
	}
	return read, nil
}

func (s *memoryStorage) writeByteAt(p *pointer, b byte) error {
	ctx := s.context(p)
	if s.chunk(ctx) == nil {
		s.addChunk(1)
	}
	s.chunk(ctx)[ctx.off] = b
	s.advance(p, 1)
	if p.pos > s.total {
		s.total = p.pos
	}
	return nil
}

func (s *memoryStorage) writeAt(p *pointer, src []byte) error {
	ctx := s.context(p)
	remaining := len(src)
	for remaining > 0 {
		chunk := s.chunk(ctx)
		if chunk == nil {
			s.addChunk(remaining)
			chunk = s.chunk(ctx)
		}
		toCopy := len(chunk) - ctx.off
		if toCopy > remaining {
			toCopy = remaining
		}
		copy(chunk[ctx.off:], src[len(src)-remaining:len(src)-remaining+toCopy])
		remaining -= toCopy
		s.advance(p, int64(toCopy))
	}
	if p.pos > s.total {
		s.total = p.pos
	}
	return nil
}

func (s *memoryStorage) advance(p *pointer, n int64) {
	ctx := s.context(p)
	remain := n
	for remain > 0 {
		inChunk := int64(len(s.chunks[ctx.idx]) - ctx.off)
		if remain >= inChunk {
			remain -= inChunk
			ctx.off = 0
			ctx.idx++
		} else {
			ctx.off += int(remain)
			remain = 0
		}
	}
	p.pos += n
}

func (s *memoryStorage) truncate(n int64) error {
	p := s.newPointer()
	s.advance(p, n)
	ctx := s.context(p)
	if len(s.chunks) > ctx.idx+1 {
		s.chunks = s.chunks[:ctx.idx+1]
	}
	s.total = n
	return nil
}

func (s *memoryStorage) close() error {
	s.chunks = nil
	s.total = 0
	return nil
}

func (s *memoryStorage) addChunk(atLeast int) {
	size := atLeast
	if len(s.chunks) > 0 {
		if doubled := len(s.chunks[len(s.chunks)-1]) * 2; doubled > size {
			size = doubled
		}
	}
	s.chunks = append(s.chunks, make([]byte, size))
}
