package rarlist

import (
	"bytes"

	"github.com/solidbyte/rarlist/internal/util"
)

// RAR3 block type byte.
const (
	r3TypeMark        = 0x72
	r3TypeMain        = 0x73
	r3TypeFile        = 0x74
	r3TypeOldComment  = 0x75
	r3TypeOldExtra    = 0x76
	r3TypeOldSub      = 0x77
	r3TypeOldRecovery = 0x78
	r3TypeOldAuth     = 0x79
	r3TypeSub         = 0x7A
	r3TypeEndArc      = 0x7B
)

// RAR3 MAIN header flags.
const (
	r3MainVolume       = 0x0001
	r3MainNewNumbering = 0x0010
	r3MainSolid        = 0x0008
	r3MainPassword     = 0x0080
	r3MainFirstVolume  = 0x0100
)

// RAR3 FILE/SUB header flags.
const (
	r3FileSplitBefore = 0x0001
	r3FileSplitAfter  = 0x0002
	r3FilePassword    = 0x0004
	r3FileDictMask    = 0x00E0
	r3FileDirectory   = 0x00E0
	r3FileLarge       = 0x0100
	r3FileUnicode     = 0x0200
	r3FileSalt        = 0x0400
	r3FileExtTime     = 0x1000
)

// RAR3 ENDARC flags.
const r3EndArcNextVolume = 0x0001

// r3LongBlock marks that a 32-bit add_size field extends the fixed
// 7-byte header; every other flag bit is block-type specific.
const r3LongBlock = 0x8000

// block3Reader walks the RAR3 block stream of a single volume, starting
// right after the 7-byte signature. next returns errEndOfBlocks once the
// header CRC no longer checks out or the source is exhausted: both are
// the unrecoverable tail of a possibly-truncated or possibly-complete
// volume, and the caller (Archive.parseFromVolume) decides which.
type block3Reader struct {
	src byteSource
	cfg Config
}

func newBlock3Reader(src byteSource, cfg Config) *block3Reader {
	return &block3Reader{src: src, cfg: cfg}
}

func (r *block3Reader) next() (*parsedBlock, error) {
	offset := r.src.tell()
	fixed, err := readFull(r.src, 7)
	if err != nil {
		return nil, errEndOfBlocks
	}
	headerCRC := uint16(fixed[0]) | uint16(fixed[1])<<8
	blockType := fixed[2]
	flags := uint16(fixed[3]) | uint16(fixed[4])<<8
	headerSize := int(uint16(fixed[5]) | uint16(fixed[6])<<8)
	if headerSize < 7 {
		return nil, errEndOfBlocks
	}

	payload, err := readFull(r.src, headerSize-7)
	if err != nil {
		return nil, errEndOfBlocks
	}

	var addSize int64
	if flags&r3LongBlock != 0 && len(payload) >= 4 {
		addSize = int64(le32(payload, 0))
	}
	dataOffset := r.src.tell()

	// Per-type CRC region: MAIN checks only its first 6 payload bytes,
	// OLD_AUTH only its first 8, OLD_SUB folds in its add_size-length data
	// area too, everything else checks the whole header payload. MARK has
	// no header CRC at all.
	crcRegion := append([]byte{}, fixed[2:]...)
	switch blockType {
	case r3TypeOldSub:
		crcRegion = append(crcRegion, payload...)
		// The data area folds into the CRC, so an absurd declared size
		// (a decryption gone wrong, or truncation) ends the stream.
		if addSize > 1<<24 {
			return nil, errEndOfBlocks
		}
		extra, err := readFull(r.src, int(addSize))
		if err != nil {
			return nil, errEndOfBlocks
		}
		crcRegion = append(crcRegion, extra...)
	case r3TypeMain:
		if len(payload) > 6 {
			crcRegion = append(crcRegion, payload[:6]...)
		} else {
			crcRegion = append(crcRegion, payload...)
		}
	case r3TypeOldAuth:
		if len(payload) > 8 {
			crcRegion = append(crcRegion, payload[:8]...)
		} else {
			crcRegion = append(crcRegion, payload...)
		}
	default:
		crcRegion = append(crcRegion, payload...)
	}
	if blockType != r3TypeMark {
		if uint16(blockCRC32(crcRegion)) != headerCRC {
			return nil, errEndOfBlocks
		}
	}

	blk := &parsedBlock{offset: offset, dataOffset: dataOffset, dataLen: addSize}

	switch blockType {
	case r3TypeMark:
		blk.kind = blockMark

	case r3TypeMain:
		blk.kind = blockMain
		mh := &mainHeader{
			Volume:          flags&r3MainVolume != 0,
			NewNumbering:    flags&r3MainNewNumbering != 0,
			Solid:           flags&r3MainSolid != 0,
			FirstVolume:     flags&r3MainFirstVolume != 0,
			HeaderEncrypted: flags&r3MainPassword != 0,
		}
		if mh.HeaderEncrypted {
			salt, err := readFull(r.src, 8)
			if err != nil {
				return nil, errEndOfBlocks
			}
			mh.Salt = salt
			dataOffset = r.src.tell()
			blk.dataOffset = dataOffset
		}
		blk.main = mh

	case r3TypeFile, r3TypeSub:
		fh, err := parseFile3Header(payload, flags, r.cfg)
		if err != nil {
			return nil, err
		}
		if blockType == r3TypeSub {
			blk.kind = blockSub
		} else {
			blk.kind = blockFile
		}
		blk.file = fh
		blk.dataLen = fh.CompressedSize // widen past add_size's 32 bits for LARGE files

	case r3TypeEndArc:
		blk.kind = blockEndArc
		blk.endArc = &endArcInfo{NextVolume: flags&r3EndArcNextVolume != 0}

	case r3TypeOldComment:
		blk.kind = blockComment
		sub := payload
		if flags&r3LongBlock != 0 && len(sub) >= 4 {
			sub = sub[4:] // skip the add_size field
		}
		blk.comment = r.parseComment3(sub, addSize)

	default:
		blk.kind = blockOther
	}

	if err := r.src.seek(blk.dataOffset + blk.dataLen); err != nil {
		return nil, err
	}
	return blk, nil
}

// parseFile3Header decodes the RAR3 FILE/SUB payload: a fixed 25-byte
// struct, an optional 8-byte LARGE-size extension, the name, an optional
// 8-byte SALT, and an optional EXTTIME record, in that order. The first
// four payload bytes double as the block's add_size, so the data length
// and the packed size are the same field.
func parseFile3Header(payload []byte, flags uint16, cfg Config) (*fileHeader, error) {
	if len(payload) < 25 {
		return nil, newErr(KindBadArchive, "truncated RAR3 file header", nil)
	}

	compressSize := int64(le32(payload, 0))
	fileSize := int64(le32(payload, 4))
	hostOS := int(payload[8])
	crc := le32(payload, 9)
	dosStamp := le32(payload, 13)
	extractVersion := int(payload[17])
	method := CompressMethod(payload[18])
	nameSize := int(le16(payload, 19))
	mode := le32(payload, 21)

	pos := 25
	if flags&r3FileLarge != 0 {
		if len(payload) < pos+8 {
			return nil, newErr(KindBadArchive, "truncated RAR3 LARGE extension", nil)
		}
		compressSize |= int64(le32(payload, pos)) << 32
		fileSize |= int64(le32(payload, pos+4)) << 32
		pos += 8
	}

	if len(payload) < pos+nameSize {
		return nil, newErr(KindBadArchive, "truncated RAR3 file name", nil)
	}
	nameBytes := payload[pos : pos+nameSize]
	pos += nameSize

	var name string
	if flags&r3FileUnicode != 0 {
		if idx := bytes.IndexByte(nameBytes, 0); idx >= 0 {
			name = util.DecodeRar3Unicode(nameBytes[:idx], nameBytes[idx+1:])
		} else {
			name = string(nameBytes)
		}
	} else {
		name = decodeName(nameBytes, cfg.Charset)
	}

	fh := &fileHeader{
		Name:             name,
		OrigNameBytes:    append([]byte{}, nameBytes...),
		CompressedSize:   compressSize,
		UncompressedSize: fileSize,
		CRC32:            crc,
		HasCRC:           true,
		CompressMethod:   method,
		HostOS:           hostOS,
		DOSTime:          decodeDOSTime(dosStamp),
		ExtractVersion:   extractVersion,
		Mode:             mode,
		SplitBefore:      flags&r3FileSplitBefore != 0,
		SplitAfter:       flags&r3FileSplitAfter != 0,
		HasPassword:      flags&r3FilePassword != 0,
		IsDirectory:      flags&r3FileDictMask == r3FileDirectory,
	}

	if flags&r3FileSalt != 0 {
		if len(payload) < pos+8 {
			return nil, newErr(KindBadArchive, "truncated RAR3 salt", nil)
		}
		fh.Salt = append([]byte{}, payload[pos:pos+8]...)
		pos += 8
	}

	if flags&r3FileExtTime != 0 && pos < len(payload) {
		et, err := parseExtTime(payload[pos:], fh.DOSTime)
		if err == nil {
			fh.MTime, fh.HasMTime = et.MTime, et.HasMTime
			fh.CTime, fh.HasCTime = et.CTime, et.HasCTime
			fh.ATime, fh.HasATime = et.ATime, et.HasATime
			fh.ArcTime, fh.HasArcTime = et.ArcTime, et.HasArcTime
		}
	}
	if !fh.HasMTime {
		fh.MTime = fh.DOSTime.Time()
		fh.HasMTime = true
	}

	return fh, nil
}

// parseComment3 decodes an OLD_COMMENT block: a 6-byte sub-header
// (UnpSize, UnpVer, Method, CommCRC) followed by addSize bytes of
// comment data, compressed the same way file data is. Only
// Method == stored is decoded directly; anything else has no in-package
// decompressor to call, so the comment is left unset.
func (r *block3Reader) parseComment3(payload []byte, addSize int64) *commentInfo {
	if len(payload) < 6 {
		return nil
	}
	unpSize := int(le16(payload, 0))
	method := CompressMethod(payload[3])
	data, err := readFull(r.src, int(addSize))
	if err != nil {
		return nil
	}
	if method != MethodStored {
		return nil
	}
	if unpSize >= 0 && unpSize <= len(data) {
		data = data[:unpSize]
	}
	return &commentInfo{Text: decodeName(data, r.cfg.Charset)}
}

func le16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func le32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}
