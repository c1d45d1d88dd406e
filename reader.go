package rarlist

import "io"

// Reader is a seekable, CRC-verifying view over one Entry's stored data,
// stitching fragments across volumes when the entry was split. Only the
// Stored compression method is supported; an entry with any other
// method is refused with an ErrUnsupportedFeature error.
type Reader struct {
	entry   *Entry
	fsys    FileSystem
	cfg     Config
	version Version
	keys    *keyCache

	cum []int64 // cum[i]..cum[i+1] is fragment i's logical byte range

	fragIdx  int // index of the fragment cur is positioned over, or -1
	fragBase int64
	cur      byteSource

	pos      int64
	crc      uint32
	crcValid bool
	closed   bool
}

func newReader(entry *Entry, fsys FileSystem, cfg Config, version Version, keys *keyCache) (*Reader, error) {
	if entry.NeedsExternalDecompressor() {
		return nil, newErrf(KindUnsupportedFeature, nil, "entry %q uses compression method %d, which needs an external Decompressor", entry.Name, entry.CompressMethod)
	}
	if entry.Encrypted && cfg.Password == "" {
		return nil, ErrPasswordRequired
	}
	if entry.Encrypted && version == VersionRAR5 && entry.Crypt == nil {
		return nil, newErrf(KindNoCrypto, nil, "entry %q is marked encrypted but carries no CRYPT record", entry.Name)
	}

	cum := make([]int64, len(entry.fragments)+1)
	for i, f := range entry.fragments {
		remain := entry.Size - cum[i]
		if remain < 0 {
			remain = 0
		}
		plain := f.length
		if plain > remain {
			plain = remain
		}
		cum[i+1] = cum[i] + plain
	}

	return &Reader{
		entry:    entry,
		fsys:     fsys,
		cfg:      cfg,
		version:  version,
		keys:     keys,
		cum:      cum,
		fragIdx:  -1,
		crcValid: true,
	}, nil
}

// Read implements io.Reader. On the first read that reaches entry.Size it
// verifies the accumulated CRC-32 against Entry.CRC32 (unless disabled by
// Config.NoCRCCheck, the entry carries no CRC, or a prior Seek already
// invalidated the accumulator) and returns a KindBadArchive error instead
// of plain io.EOF when verification fails.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, newErrf(KindIOError, nil, "read from closed reader")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.pos >= r.entry.Size {
		return 0, r.finish()
	}

	fragIdx, local := r.locate(r.pos)
	if err := r.ensureFragment(fragIdx, local); err != nil {
		return 0, err
	}

	avail := r.cum[fragIdx+1] - r.pos
	want := int64(len(p))
	if want > avail {
		want = avail
	}
	chunk, err := r.cur.read(int(want))
	n := len(chunk)
	copy(p, chunk)
	r.pos += int64(n)
	if r.crcValid {
		r.crc = updateCRC32(r.crc, chunk)
	}
	if n == 0 && err != nil {
		if err == io.EOF {
			return 0, newErrf(KindBadArchive, nil, "entry %q: volume ended before its stored data did", r.entry.Name)
		}
		return 0, err
	}
	if r.pos >= r.entry.Size {
		if fin := r.finish(); fin != nil {
			return n, fin
		}
		return n, nil
	}
	return n, nil
}

// finish is called once the cursor reaches entry.Size: it reports the CRC
// verdict (first call only) and io.EOF thereafter.
func (r *Reader) finish() error {
	if !r.crcValid || r.cfg.NoCRCCheck || !r.entry.HasCRC {
		return io.EOF
	}
	// Checked once: flip crcValid off so a caller calling Read again
	// past EOF just gets io.EOF, not a repeated verification error.
	r.crcValid = false
	if r.crc != r.entry.CRC32 {
		return newErrf(KindBadArchive, nil, "entry %q: CRC mismatch (got %08x, want %08x)", r.entry.Name, r.crc, r.entry.CRC32)
	}
	return io.EOF
}

// Seek implements io.Seeker. Results clamp into [0, entry.Size] rather
// than erroring on an out-of-range request, and any seek away from the
// current position permanently disables CRC verification for this
// Reader: the accumulator no longer reflects a front-to-back read.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, newErrf(KindIOError, nil, "seek on closed reader")
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		target = r.entry.Size + offset
	default:
		return 0, newErrf(KindBadArchive, nil, "invalid whence %d", whence)
	}
	if target < 0 {
		target = 0
	}
	if target > r.entry.Size {
		target = r.entry.Size
	}
	if target != r.pos {
		r.crcValid = false
	}
	r.pos = target
	if r.pos < r.entry.Size {
		fragIdx, local := r.locate(r.pos)
		if err := r.ensureFragment(fragIdx, local); err != nil {
			return 0, err
		}
	}
	return r.pos, nil
}

// Close releases the currently open fragment's byte source. It is safe
// to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.cur != nil {
		err := r.cur.close()
		r.cur = nil
		return err
	}
	return nil
}

// locate returns which fragment logical position pos falls in, and the
// offset within that fragment's plaintext range.
func (r *Reader) locate(pos int64) (fragIdx int, local int64) {
	for i := 0; i < len(r.cum)-1; i++ {
		if pos < r.cum[i+1] || i == len(r.cum)-2 {
			return i, pos - r.cum[i]
		}
	}
	return 0, 0
}

// ensureFragment makes r.cur the byte source for fragment fragIdx,
// positioned at local bytes into its plaintext range, opening a new
// volume file (and, for encrypted entries, a fresh decryptingByteSource)
// only when the fragment actually changes.
func (r *Reader) ensureFragment(fragIdx int, local int64) error {
	if fragIdx == r.fragIdx && r.cur != nil {
		return r.seekWithinFragment(local)
	}
	if r.cur != nil {
		_ = r.cur.close()
		r.cur = nil
	}
	f := r.entry.fragments[fragIdx]
	raw, err := openVolumeSource(r.fsys, f.volume)
	if err != nil {
		return err
	}
	src := byteSource(raw)
	if r.entry.Encrypted {
		if r.version == VersionRAR5 {
			key := r.keys.getOrDeriveRAR5(r.cfg.Password, r.entry.Crypt.Salt, r.entry.Crypt.Iterations)
			src, err = newDecryptingSource(raw, f.offset, key, r.entry.Crypt.IV)
		} else {
			key, iv := r.keys.getOrDeriveRAR3(r.cfg.Password, r.entry.Salt)
			src, err = newDecryptingSource(raw, f.offset, key, iv)
		}
		if err != nil {
			_ = raw.close()
			return err
		}
	}
	r.cur = src
	r.fragBase = f.offset
	r.fragIdx = fragIdx
	return r.seekWithinFragment(local)
}

func (r *Reader) seekWithinFragment(local int64) error {
	return r.cur.seek(r.fragBase + local)
}
