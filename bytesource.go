package rarlist

import (
	"bytes"
	"io"
	"os"
)

// byteSource is a random-access view over one physical volume file: a
// path on disk or, for tests and in-memory archives, a plain byte slice.
// Implementations are single-owner; nothing in this package shares one
// across goroutines.
type byteSource interface {
	// read returns up to n bytes. A short read is not an error; it only
	// means fewer bytes were available right now. io.EOF (or a wrapped
	// io.EOF) is returned once nothing more can ever be read.
	read(n int) ([]byte, error)
	// seek repositions the cursor. Seeking past end-of-file is allowed;
	// the next read simply returns no bytes.
	seek(offset int64) error
	// tell reports the current cursor position.
	tell() int64
	// size reports the total byte length of the source, when known.
	size() int64
	close() error
}

// fileByteSource backs byteSource with an *os.File.
type fileByteSource struct {
	f    *os.File
	path string
	sz   int64
}

func openFileSource(path string) (*fileByteSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErrf(KindIOError, err, "open volume %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, newErrf(KindIOError, err, "stat volume %s", path)
	}
	return &fileByteSource{f: f, path: path, sz: st.Size()}, nil
}

func (s *fileByteSource) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(s.f, buf)
	if read > 0 {
		buf = buf[:read]
	} else {
		buf = nil
	}
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return buf, io.EOF
		}
		return buf, newErrf(KindIOError, err, "read volume %s", s.path)
	}
	return buf, nil
}

func (s *fileByteSource) seek(offset int64) error {
	if _, err := s.f.Seek(offset, io.SeekStart); err != nil {
		return newErrf(KindIOError, err, "seek volume %s", s.path)
	}
	return nil
}

func (s *fileByteSource) tell() int64 {
	off, _ := s.f.Seek(0, io.SeekCurrent)
	return off
}

func (s *fileByteSource) size() int64 { return s.sz }

func (s *fileByteSource) close() error { return s.f.Close() }

// memByteSource backs byteSource with an in-memory buffer, used for
// tests and for archives supplied directly as bytes.
type memByteSource struct {
	r    *bytes.Reader
	data []byte
}

func newMemSource(data []byte) *memByteSource {
	return &memByteSource{r: bytes.NewReader(data), data: data}
}

func (s *memByteSource) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := s.r.Read(buf)
	if read > 0 {
		buf = buf[:read]
	} else {
		buf = nil
	}
	if err != nil && err != io.EOF {
		return buf, newErrf(KindIOError, err, "read memory source")
	}
	if read == 0 {
		return buf, io.EOF
	}
	return buf, nil
}

func (s *memByteSource) seek(offset int64) error {
	_, err := s.r.Seek(offset, io.SeekStart)
	return err
}

func (s *memByteSource) tell() int64 {
	off, _ := s.r.Seek(0, io.SeekCurrent)
	return off
}

func (s *memByteSource) size() int64 { return int64(len(s.data)) }

func (s *memByteSource) close() error { return nil }

// readFull reads exactly n bytes from src, treating a short final read as
// io.ErrUnexpectedEOF instead of the plain io.EOF a single read(n) call
// would report.
func readFull(src byteSource, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		chunk, err := src.read(n - len(buf))
		buf = append(buf, chunk...)
		if err != nil {
			if err == io.EOF && len(buf) == n {
				break
			}
			if err == io.EOF {
				return buf, io.ErrUnexpectedEOF
			}
			return buf, err
		}
		if len(chunk) == 0 {
			return buf, io.ErrUnexpectedEOF
		}
	}
	return buf, nil
}
