package rarlist

import "time"

// Entry is one logical file inside an archive: a FILE block, or a chain
// of them stitched across volumes when SPLIT_BEFORE/SPLIT_AFTER flags
// span a boundary.
type Entry struct {
	Name          string
	IsDir         bool
	IsSymlink     bool
	SymlinkTarget string

	Size           int64 // uncompressed
	CompressedSize int64
	CRC32          uint32
	HasCRC         bool

	Mode           uint32
	HostOS         int
	CompressMethod CompressMethod

	MTime, CTime, ATime          time.Time
	HasMTime, HasCTime, HasATime bool

	Encrypted bool
	Salt      []byte
	Crypt     *FileCrypt // RAR5 per-file encryption parameters, when present

	// Extra carries the RAR5 file-record extra-area entries: owner/group,
	// high-resolution times, redirections, per-file encryption, hash,
	// version and service sub-data records each get their own Kind, and
	// anything else (quick-open links, NTFS ACL records) is preserved as
	// ExtraUnknown with its raw bytes rather than dropped. Always empty
	// for RAR3 entries.
	Extra []ExtraRecord

	fragments []fragment
}

// NeedsExternalDecompressor reports whether reading this entry's data
// requires a configured Decompressor: anything other than the Stored
// method.
func (e *Entry) NeedsExternalDecompressor() bool {
	return e.CompressMethod != MethodStored
}

// fragment is one FILE block's contribution to an Entry's data,
// located within a single volume.
type fragment struct {
	volume string
	offset int64
	length int64
}

func entryFromHeader(fh *fileHeader) *Entry {
	return &Entry{
		Name:           fh.Name,
		IsDir:          fh.IsDirectory,
		IsSymlink:      fh.IsSymlink,
		SymlinkTarget:  fh.SymlinkTarget,
		Size:           fh.UncompressedSize,
		Mode:           fh.Mode,
		HostOS:         fh.HostOS,
		CompressMethod: fh.CompressMethod,
		MTime:          fh.MTime,
		HasMTime:       fh.HasMTime,
		CTime:          fh.CTime,
		HasCTime:       fh.HasCTime,
		ATime:          fh.ATime,
		HasATime:       fh.HasATime,
		Encrypted:      fh.HasPassword,
		Salt:           fh.Salt,
		Crypt:          fh.Crypt,
		Extra:          fh.Extra,
	}
}

// assembler merges the FILE blocks discovered across a volume set into
// logical Entry values. addFile must be called in archive order, one
// call per FILE block encountered.
type assembler struct {
	entries []*Entry
	pending *Entry // the entry still waiting for its next SPLIT_AFTER continuation
}

func newAssembler() *assembler {
	return &assembler{}
}

// addFile folds one parsed FILE block into the entry list, assigning it
// to a fresh Entry or to the in-flight continuation depending on
// SPLIT_BEFORE.
func (a *assembler) addFile(fh *fileHeader, volume string, dataOffset, dataLen int64) error {
	var e *Entry
	if fh.SplitBefore {
		if a.pending == nil {
			return newErr(KindNeedFirstVolume, "archive opened mid-split: the first fragment of this entry is missing", nil)
		}
		if a.pending.Name != fh.Name {
			return newErrf(KindBadArchive, nil, "split continuation name mismatch: %q != %q", fh.Name, a.pending.Name)
		}
		e = a.pending
	} else {
		e = entryFromHeader(fh)
		a.entries = append(a.entries, e)
	}

	e.fragments = append(e.fragments, fragment{volume: volume, offset: dataOffset, length: dataLen})
	e.CompressedSize += dataLen

	if fh.SplitAfter {
		a.pending = e
	} else {
		// The final fragment's header carries the whole file's
		// authoritative CRC and uncompressed size.
		e.CRC32 = fh.CRC32
		e.HasCRC = fh.HasCRC
		e.Size = fh.UncompressedSize
		a.pending = nil
	}
	return nil
}

// incomplete reports whether the last entry added is still waiting for a
// continuation on a volume we haven't reached (or that doesn't exist).
func (a *assembler) incomplete() bool {
	return a.pending != nil
}
