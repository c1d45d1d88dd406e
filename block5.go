package rarlist

import (
	"time"

	"github.com/solidbyte/rarlist/internal/parse"
)

// RAR5 header types.
const (
	r5TypeMain    = 1
	r5TypeFile    = 2
	r5TypeService = 3
	r5TypeEncrypt = 4
	r5TypeEndArc  = 5
)

// RAR5 common header flags (apply to every record type).
const (
	r5HeadExtra         = 0x0001
	r5HeadData          = 0x0002
	r5HeadSkipIfUnknown = 0x0004
	r5HeadSplitBefore   = 0x0008
	r5HeadSplitAfter    = 0x0010
)

// RAR5 MAIN archive flags.
const (
	r5MainVolume    = 0x0001
	r5MainVolNumber = 0x0002
	r5MainSolid     = 0x0004
)

// RAR5 ENDARC flags.
const r5EndArcNextVolume = 0x0001

// maxHeaderSize5 bounds a single record header's declared size.
const maxHeaderSize5 = 1 << 21

// RAR5 FILE/SERVICE record flags.
const (
	r5FileDirectory = 0x0001
	r5FileUTime     = 0x0002
	r5FileCRC32     = 0x0004
)

// RAR5 extra-area record tags on FILE/SERVICE records.
const (
	r5ExtraCrypt   = 1
	r5ExtraHash    = 2
	r5ExtraHTime   = 3
	r5ExtraVersion = 4
	r5ExtraRedir   = 5
	r5ExtraUOwner  = 6
	r5ExtraSubData = 7
)

// block5Reader walks the RAR5 record stream of a single volume, starting
// right after the 8-byte signature.
type block5Reader struct {
	src byteSource
	cfg Config
}

func newBlock5Reader(src byteSource, cfg Config) *block5Reader {
	return &block5Reader{src: src, cfg: cfg}
}

func readVarintSrc(src byteSource) (uint64, error) {
	var val uint64
	for i := 0; i < 10; i++ {
		b, err := src.read(1)
		if err != nil || len(b) == 0 {
			return 0, errEndOfBlocks
		}
		val |= uint64(b[0]&0x7F) << (7 * i)
		if b[0]&0x80 == 0 {
			return val, nil
		}
	}
	return 0, newErr(KindBadArchive, "RAR5 varint too long", nil)
}

func (r *block5Reader) next() (*parsedBlock, error) {
	offset := r.src.tell()
	crcBytes, err := readFull(r.src, 4)
	if err != nil {
		return nil, errEndOfBlocks
	}
	recordCRC := le32(crcBytes, 0)

	headerSize, err := readVarintSrc(r.src)
	if err != nil {
		return nil, errEndOfBlocks
	}
	// Real record headers are tiny; anything outsized means the stream is
	// garbage (truncation, or a wrong decryption key).
	if headerSize == 0 || headerSize > maxHeaderSize5 {
		return nil, errEndOfBlocks
	}
	body, err := readFull(r.src, int(headerSize))
	if err != nil {
		return nil, errEndOfBlocks
	}
	if blockCRC32(body) != recordCRC {
		return nil, errEndOfBlocks
	}

	cur := &parse.Cursor{Buf: body}
	headerType, ok := cur.Varint()
	if !ok {
		return nil, errEndOfBlocks
	}
	headerFlags, ok := cur.Varint()
	if !ok {
		return nil, errEndOfBlocks
	}

	var extraSize, dataSize uint64
	if headerFlags&r5HeadExtra != 0 {
		if extraSize, ok = cur.Varint(); !ok {
			return nil, errEndOfBlocks
		}
	}
	if headerFlags&r5HeadData != 0 {
		if dataSize, ok = cur.Varint(); !ok {
			return nil, errEndOfBlocks
		}
	}

	blk := &parsedBlock{offset: offset}

	switch headerType {
	case r5TypeMain:
		blk.kind = blockMain
		archFlags, _ := cur.Varint()
		mh := &mainHeader{
			Volume: archFlags&r5MainVolume != 0,
			Solid:  archFlags&r5MainSolid != 0,
		}
		if archFlags&r5MainVolNumber != 0 {
			volNum, _ := cur.Varint()
			mh.FirstVolume = volNum == 0
		} else {
			mh.FirstVolume = true
		}
		blk.main = mh

	case r5TypeEncrypt:
		blk.kind = blockEncryption
		version, _ := cur.Varint()
		_ = version
		encFlags, _ := cur.Varint()
		kdfCount, _ := cur.Byte()
		salt, _ := cur.Bytes(16)
		iv, _ := cur.Bytes(16)
		enc := &encryptionInfo{
			Salt:       append([]byte{}, salt...),
			IV:         append([]byte{}, iv...),
			Iterations: uint32(1) << uint(kdfCount),
		}
		if encFlags&0x0001 != 0 {
			check, ok := cur.Bytes(12)
			if ok {
				enc.CheckValue = append([]byte{}, check...)
				enc.HasCheckValue = true
			}
		}
		blk.crypt = enc

	case r5TypeFile, r5TypeService:
		fh, err := parseFile5Body(cur, extraSize)
		if err != nil {
			return nil, err
		}
		fh.SplitBefore = headerFlags&r5HeadSplitBefore != 0
		fh.SplitAfter = headerFlags&r5HeadSplitAfter != 0
		if headerType == r5TypeService {
			blk.kind = blockSub
		} else {
			blk.kind = blockFile
		}
		blk.file = fh

	case r5TypeEndArc:
		blk.kind = blockEndArc
		endFlags, _ := cur.Varint()
		blk.endArc = &endArcInfo{NextVolume: endFlags&r5EndArcNextVolume != 0}

	default:
		blk.kind = blockOther
	}

	blk.dataOffset = r.src.tell()
	blk.dataLen = int64(dataSize)
	if blk.file != nil {
		blk.file.CompressedSize = int64(dataSize)
	}
	if err := r.src.seek(blk.dataOffset + blk.dataLen); err != nil {
		return nil, err
	}
	return blk, nil
}

// parseFile5Body decodes the FILE/SERVICE record body after the common
// header fields: flags, sizes, compression info, host OS, name, and
// finally an extra area of extraSize bytes.
func parseFile5Body(cur *parse.Cursor, extraSize uint64) (*fileHeader, error) {
	fileFlags, ok := cur.Varint()
	if !ok {
		return nil, newErr(KindBadArchive, "truncated RAR5 file record", nil)
	}
	unpackedSize, ok := cur.Varint()
	if !ok {
		return nil, newErr(KindBadArchive, "truncated RAR5 file record", nil)
	}
	attrs, ok := cur.Varint()
	if !ok {
		return nil, newErr(KindBadArchive, "truncated RAR5 file record", nil)
	}

	fh := &fileHeader{
		UncompressedSize: int64(unpackedSize),
		Mode:             uint32(attrs),
		IsDirectory:      fileFlags&r5FileDirectory != 0,
	}

	if fileFlags&r5FileUTime != 0 {
		raw, ok := cur.Bytes(4)
		if !ok {
			return nil, newErr(KindBadArchive, "truncated RAR5 mtime", nil)
		}
		sec := le32(raw, 0)
		fh.MTime = time.Unix(int64(sec), 0).UTC()
		fh.HasMTime = true
	}
	if fileFlags&r5FileCRC32 != 0 {
		raw, ok := cur.Bytes(4)
		if !ok {
			return nil, newErr(KindBadArchive, "truncated RAR5 data CRC", nil)
		}
		fh.CRC32 = le32(raw, 0)
		fh.HasCRC = true
	}

	compInfo, ok := cur.Varint()
	if !ok {
		return nil, newErr(KindBadArchive, "truncated RAR5 compression info", nil)
	}
	// Bits 7-9 of CompressionInfo carry the method (0 = store), per the
	// documented RAR5 record layout.
	if method := (compInfo >> 7) & 0x7; method == 0 {
		fh.CompressMethod = MethodStored
	} else {
		fh.CompressMethod = CompressMethod(0x30 + method)
	}

	hostOS, ok := cur.Varint()
	if !ok {
		return nil, newErr(KindBadArchive, "truncated RAR5 host OS", nil)
	}
	fh.HostOS = int(hostOS)

	nameLen, ok := cur.Varint()
	if !ok {
		return nil, newErr(KindBadArchive, "truncated RAR5 name length", nil)
	}
	nameBytes, ok := cur.Bytes(int(nameLen))
	if !ok {
		return nil, newErr(KindBadArchive, "truncated RAR5 name", nil)
	}
	fh.OrigNameBytes = append([]byte{}, nameBytes...)
	fh.Name = string(nameBytes) // RAR5 names are always UTF-8

	if extraSize > 0 {
		extra, ok := cur.Bytes(int(extraSize))
		if ok {
			fh.Extra = parseExtraArea(extra)
			applyExtraToHeader(fh, fh.Extra)
		}
	}

	return fh, nil
}

// parseExtraArea decodes a FILE/SERVICE record's extra area into a
// sequence of tagged records. Any record this
// library doesn't specifically interpret is kept as raw bytes under
// ExtraUnknown rather than dropped.
func parseExtraArea(buf []byte) []ExtraRecord {
	var out []ExtraRecord
	cur := &parse.Cursor{Buf: buf}
	for cur.Pos < len(cur.Buf) {
		size, ok := cur.Varint()
		if !ok || size == 0 {
			break
		}
		start := cur.Pos
		end := start + int(size)
		if end > len(cur.Buf) {
			break
		}
		recBuf := cur.Buf[start:end]
		cur.Pos = end

		recCur := &parse.Cursor{Buf: recBuf}
		tag, ok := recCur.Varint()
		if !ok {
			continue
		}
		rec := ExtraRecord{Raw: append([]byte{}, recBuf...)}
		switch tag {
		case r5ExtraUOwner:
			rec.Kind = ExtraUnixOwner
			rec.UnixOwner = parseUnixOwner(recCur)
		case r5ExtraHTime:
			rec.Kind = ExtraHighResTime
			rec.HighResTime = parseHighResTime(recCur)
		case r5ExtraRedir:
			rec.Kind = ExtraRedirection
			rec.Redirection = parseRedirection(recCur)
		case r5ExtraCrypt:
			rec.Kind = ExtraCrypt
			rec.FileCrypt = parseFileCrypt(recCur)
		case r5ExtraHash:
			rec.Kind = ExtraHash
		case r5ExtraVersion:
			rec.Kind = ExtraVersion
		case r5ExtraSubData:
			rec.Kind = ExtraSubData
		default:
			rec.Kind = ExtraUnknown
		}
		out = append(out, rec)
	}
	return out
}

func applyExtraToHeader(fh *fileHeader, extras []ExtraRecord) {
	for _, e := range extras {
		switch e.Kind {
		case ExtraRedirection:
			if e.Redirection != nil {
				fh.IsSymlink = true
				fh.SymlinkTarget = e.Redirection.Target
			}
		case ExtraHighResTime:
			if e.HighResTime != nil {
				if e.HighResTime.HasMTime {
					fh.MTime, fh.HasMTime = e.HighResTime.MTime, true
				}
				if e.HighResTime.HasCTime {
					fh.CTime, fh.HasCTime = e.HighResTime.CTime, true
				}
				if e.HighResTime.HasATime {
					fh.ATime, fh.HasATime = e.HighResTime.ATime, true
				}
			}
		case ExtraCrypt:
			if e.FileCrypt != nil {
				fh.Crypt = e.FileCrypt
				fh.HasPassword = true
			}
		}
	}
}

func parseFileCrypt(cur *parse.Cursor) *FileCrypt {
	if _, ok := cur.Varint(); !ok { // version
		return nil
	}
	flags, ok := cur.Varint()
	if !ok {
		return nil
	}
	kdfCount, ok := cur.Byte()
	if !ok {
		return nil
	}
	salt, ok := cur.Bytes(16)
	if !ok {
		return nil
	}
	iv, ok := cur.Bytes(16)
	if !ok {
		return nil
	}
	fc := &FileCrypt{
		Salt:       append([]byte{}, salt...),
		IV:         append([]byte{}, iv...),
		Iterations: uint32(1) << uint(kdfCount),
	}
	if flags&0x0001 != 0 {
		if check, ok := cur.Bytes(12); ok {
			fc.CheckValue = append([]byte{}, check...)
			fc.HasCheckValue = true
		}
	}
	return fc
}

func parseUnixOwner(cur *parse.Cursor) *UnixOwner {
	flags, ok := cur.Varint()
	if !ok {
		return nil
	}
	o := &UnixOwner{}
	if flags&0x1 != 0 {
		n, ok := cur.Varint()
		if !ok {
			return o
		}
		b, ok := cur.Bytes(int(n))
		if !ok {
			return o
		}
		o.User = string(b)
	}
	if flags&0x2 != 0 {
		n, ok := cur.Varint()
		if !ok {
			return o
		}
		b, ok := cur.Bytes(int(n))
		if !ok {
			return o
		}
		o.Group = string(b)
	}
	if flags&0x4 != 0 {
		uid, ok := cur.Varint()
		if ok {
			o.UID, o.HasUID = uint32(uid), true
		}
	}
	if flags&0x8 != 0 {
		gid, ok := cur.Varint()
		if ok {
			o.GID, o.HasGID = uint32(gid), true
		}
	}
	return o
}

// windowsEpoch is 1601-01-01, the base of Windows FILETIME ticks.
var windowsEpoch = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

func filetimeToTime(ticks uint64) time.Time {
	return windowsEpoch.Add(time.Duration(ticks) * 100)
}

func parseHighResTime(cur *parse.Cursor) *HighResTime {
	flags, ok := cur.Varint()
	if !ok {
		return nil
	}
	h := &HighResTime{IsUnix: flags&0x1 != 0}
	read := func() (time.Time, bool) {
		if h.IsUnix {
			raw, ok := cur.Bytes(4)
			if !ok {
				return time.Time{}, false
			}
			return time.Unix(int64(le32(raw, 0)), 0).UTC(), true
		}
		raw, ok := cur.Bytes(8)
		if !ok {
			return time.Time{}, false
		}
		ticks := uint64(le32(raw, 0)) | uint64(le32(raw, 4))<<32
		return filetimeToTime(ticks), true
	}
	if flags&0x2 != 0 {
		h.MTime, h.HasMTime = mustTime(read())
	}
	if flags&0x4 != 0 {
		h.CTime, h.HasCTime = mustTime(read())
	}
	if flags&0x8 != 0 {
		h.ATime, h.HasATime = mustTime(read())
	}
	return h
}

func mustTime(t time.Time, ok bool) (time.Time, bool) { return t, ok }

func parseRedirection(cur *parse.Cursor) *Redirection {
	redirType, ok := cur.Varint()
	if !ok {
		return nil
	}
	flags, ok := cur.Varint()
	if !ok {
		return nil
	}
	n, ok := cur.Varint()
	if !ok {
		return nil
	}
	b, ok := cur.Bytes(int(n))
	if !ok {
		return nil
	}
	return &Redirection{Type: redirType, Target: string(b), IsDir: flags&0x1 != 0}
}
