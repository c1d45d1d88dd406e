package rarlist

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxDiscoverVolumes bounds the speculative forward scan DiscoverVolumes
// performs; it comfortably covers the old-naming r00-s99 range and any
// realistic new-naming partNNN sequence.
const maxDiscoverVolumes = 256

// Archive is a parsed RAR3 or RAR5 container, possibly spanning several
// volumes. The zero value is not usable; construct one with Open or
// OpenFS.
type Archive struct {
	fsys    FileSystem
	cfg     Config
	version Version

	volumes      []string
	newNumbering bool

	entries *assembler
	byName  map[string]*Entry

	needsPassword bool
	headerSalt3   []byte // RAR3 MAIN salt, set when needsPassword
	enc5          *encryptionInfo
	resumeOffset  int64 // byte offset in volumes[resumeVolIdx] to resume parsing from once a password is set
	resumeVolIdx  int
	keys          *keyCache

	comment    string
	hasComment bool
}

// Open opens the archive starting at path on the local filesystem.
func Open(path string, cfg Config) (*Archive, error) {
	return OpenFS(defaultFS, path, cfg)
}

// OpenFS opens the archive starting at path, using fsys for all file
// access: discovery of additional volumes, and later, stored-file reads.
func OpenFS(fsys FileSystem, path string, cfg Config) (*Archive, error) {
	cfg = cfg.withDefaults()

	raw, err := openVolumeSource(fsys, path)
	if err != nil {
		return nil, err
	}
	defer raw.close()

	version, sigLen, err := detectSignature(raw)
	if err != nil {
		return nil, err
	}
	if err := raw.seek(sigLen); err != nil {
		return nil, err
	}
	cfg.Logger.WithFields(logrus.Fields{"path": path, "version": string(version)}).Debug("opening archive")

	a := &Archive{
		fsys:    fsys,
		cfg:     cfg,
		version: version,
		volumes: []string{path},
		entries: newAssembler(),
		byName:  map[string]*Entry{},
		keys:    newKeyCache(),
		// RAR5 dropped the old r00/r01 scheme; partN.rar is the only
		// convention, so no MAIN flag announces it.
		newNumbering: version == VersionRAR5,
	}

	if err := a.parseFromVolume(0, raw); err != nil {
		return nil, err
	}
	return a, nil
}

// detectSignature reports which container format src holds and how many
// leading bytes to skip (the signature itself, plus any SFX stub bytes
// preceding it). It scans at most sfxScanWindow bytes.
func detectSignature(src byteSource) (Version, int64, error) {
	window := sfxScanWindow
	if s := src.size(); s > 0 && s < int64(window) {
		window = int(s)
	}
	buf, err := readFull(src, window)
	if err != nil && len(buf) == 0 {
		return VersionUnknown, 0, ErrNotArchive
	}
	for i := range buf {
		if i+len(sigRAR5) <= len(buf) && bytesEqual(buf[i:i+len(sigRAR5)], sigRAR5) {
			return VersionRAR5, int64(i + len(sigRAR5)), nil
		}
		if i+len(sigRAR3) <= len(buf) && bytesEqual(buf[i:i+len(sigRAR3)], sigRAR3) {
			return VersionRAR3, int64(i + len(sigRAR3)), nil
		}
	}
	return VersionUnknown, 0, ErrNotArchive
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// parseFromVolume drives block parsing starting at volIdx, with src
// already positioned right after that volume's signature. It crosses
// volume boundaries on its own, stopping when parsing needs a password
// it doesn't have, or when the archive is fully consumed.
func (a *Archive) parseFromVolume(volIdx int, src byteSource) error {
	var freshKey bool // first post-encryption-boundary block: CRC failure here means wrong password, not end-of-archive

	for {
		var blk *parsedBlock
		var err error
		if a.version == VersionRAR5 {
			blk, err = newBlock5Reader(src, a.cfg).next()
		} else {
			blk, err = newBlock3Reader(src, a.cfg).next()
		}
		if err != nil {
			if err == errEndOfBlocks {
				if freshKey {
					return ErrWrongPassword
				}
				a.cfg.Logger.WithField("volume", a.volumes[volIdx]).Debug("recovered end of block stream")
				return a.finishVolume(volIdx)
			}
			return err
		}
		freshKey = false

		if a.cfg.InfoCallback != nil {
			a.cfg.InfoCallback(BlockInfo{Volume: a.volumes[volIdx], Type: blk.kind.String(), Offset: blk.offset, Size: blk.dataLen})
		}

		switch blk.kind {
		case blockMain:
			if blk.main.NewNumbering {
				a.newNumbering = true
			}
			if blk.main.HeaderEncrypted {
				if a.cfg.Password == "" {
					a.needsPassword = true
					a.headerSalt3 = blk.main.Salt
					a.resumeVolIdx = volIdx
					a.resumeOffset = blk.dataOffset
					return nil
				}
				key, iv := a.keys.getOrDeriveRAR3(a.cfg.Password, blk.main.Salt)
				dsrc, derr := newDecryptingSource(src, blk.dataOffset, key, iv)
				if derr != nil {
					return derr
				}
				src = dsrc
				freshKey = true
			}

		case blockEncryption:
			if a.cfg.Password == "" {
				a.needsPassword = true
				a.enc5 = blk.crypt
				a.resumeVolIdx = volIdx
				a.resumeOffset = blk.dataOffset
				return nil
			}
			key := a.keys.getOrDeriveRAR5(a.cfg.Password, blk.crypt.Salt, blk.crypt.Iterations)
			dsrc, derr := newDecryptingSource(src, blk.dataOffset, key, blk.crypt.IV)
			if derr != nil {
				return derr
			}
			src = dsrc
			freshKey = true

		case blockFile:
			if err := a.entries.addFile(blk.file, a.volumes[volIdx], blk.dataOffset, blk.dataLen); err != nil {
				return err
			}

		case blockSub:
			// Auxiliary streams (CMT, RR, ...) never join the entry list.
			// A stored CMT stream is the archive comment.
			a.maybeReadComment(src, blk)

		case blockComment:
			if blk.comment != nil {
				a.comment = blk.comment.Text
				a.hasComment = true
			}

		case blockEndArc:
			if blk.endArc.NextVolume && !a.cfg.PartOnly {
				return a.openNextVolume(volIdx)
			}
			return a.finishVolume(volIdx)
		}
	}
}

// maybeReadComment pulls the data area of a CMT auxiliary stream back in
// as the archive comment. Only the stored method can be decoded without
// an external decompressor; anything else leaves the comment unset. The
// source is repositioned to the end of the data area afterwards, where
// the block reader left it.
func (a *Archive) maybeReadComment(src byteSource, blk *parsedBlock) {
	if blk.file == nil || blk.file.Name != "CMT" || blk.file.CompressMethod != MethodStored {
		return
	}
	if blk.dataLen <= 0 {
		return
	}
	if err := src.seek(blk.dataOffset); err != nil {
		return
	}
	data, err := readFull(src, int(blk.dataLen))
	if err == nil {
		text := data
		if blk.file.UncompressedSize > 0 && blk.file.UncompressedSize < int64(len(text)) {
			text = text[:blk.file.UncompressedSize]
		}
		if a.version == VersionRAR5 {
			a.comment = string(text)
		} else {
			a.comment = decodeName(text, a.cfg.Charset)
		}
		a.hasComment = true
	}
	_ = src.seek(blk.dataOffset + blk.dataLen)
}

// finishVolume is reached on a clean (non-password-gated) end of the
// current volume's block stream: either a true ENDARC without
// NEXT_VOLUME, or recovered truncation/CRC breakage, which yields the
// entries parsed so far rather than an error.
func (a *Archive) finishVolume(volIdx int) error {
	if a.entries.incomplete() {
		if next, err := a.probeNextVolume(volIdx); err == nil && next != "" {
			return a.openNextVolume(volIdx)
		}
	}
	a.indexEntries()
	return nil
}

func (a *Archive) probeNextVolume(volIdx int) (string, error) {
	next, err := nextVolume(a.volumes[volIdx], a.newNumbering)
	if err != nil {
		return "", err
	}
	if _, err := a.fsys.Stat(next); err != nil {
		return "", err
	}
	return next, nil
}

func (a *Archive) openNextVolume(volIdx int) error {
	next, err := nextVolume(a.volumes[volIdx], a.newNumbering)
	if err != nil {
		a.indexEntries()
		return nil
	}
	if _, err := a.fsys.Stat(next); err != nil {
		a.indexEntries()
		return nil
	}
	a.volumes = append(a.volumes, next)
	a.cfg.Logger.WithField("volume", next).Debug("opening next volume")

	src, err := openVolumeSource(a.fsys, next)
	if err != nil {
		return err
	}
	defer src.close()

	sigLen := int64(len(sigRAR3))
	if a.version == VersionRAR5 {
		sigLen = int64(len(sigRAR5))
	}
	// Continuation volumes repeat the signature bytes too.
	if _, err := readFull(src, int(sigLen)); err != nil {
		return newErrf(KindBadArchive, err, "volume %s missing signature", next)
	}
	return a.parseFromVolume(len(a.volumes)-1, src)
}

func (a *Archive) indexEntries() {
	for _, e := range a.entries.entries {
		a.byName[normalizeEntryName(e.Name)] = e
	}
}

func normalizeEntryName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

// NeedsPassword reports whether header parsing stopped because the
// archive is header-encrypted and no password has been set yet.
func (a *Archive) NeedsPassword() bool { return a.needsPassword }

// SetPassword supplies a password for a header-encrypted archive and
// resumes parsing from where it stopped. If the archive didn't need one,
// it only stores the password for later reads of encrypted entries. It
// returns ErrWrongPassword if decryption produces header garbage.
func (a *Archive) SetPassword(password string) error {
	if !a.needsPassword {
		a.cfg.Password = password
		return nil
	}
	a.cfg.Password = password

	src, err := openVolumeSource(a.fsys, a.volumes[a.resumeVolIdx])
	if err != nil {
		return err
	}
	defer src.close()

	var dsrc byteSource
	if a.version == VersionRAR5 {
		key := a.keys.getOrDeriveRAR5(password, a.enc5.Salt, a.enc5.Iterations)
		dsrc, err = newDecryptingSource(src, a.resumeOffset, key, a.enc5.IV)
	} else {
		key, iv := a.keys.getOrDeriveRAR3(password, a.headerSalt3)
		dsrc, err = newDecryptingSource(src, a.resumeOffset, key, iv)
	}
	if err != nil {
		return err
	}

	a.needsPassword = false
	if err := a.parseFromVolumeAfterEncryption(a.resumeVolIdx, dsrc); err != nil {
		a.needsPassword = true
		a.cfg.Logger.Warn("password rejected: header decryption did not yield a valid block stream")
		return err
	}
	a.cfg.Logger.Debug("password accepted, resumed header parsing")
	return nil
}

// parseFromVolumeAfterEncryption is parseFromVolume with freshKey forced
// true for its very first block, since the caller just derived a key it
// has never validated.
func (a *Archive) parseFromVolumeAfterEncryption(volIdx int, dsrc byteSource) error {
	blk, err := a.firstBlockAfterKey(dsrc)
	if err != nil {
		return ErrWrongPassword
	}
	if a.cfg.InfoCallback != nil {
		a.cfg.InfoCallback(BlockInfo{Volume: a.volumes[volIdx], Type: blk.kind.String(), Offset: blk.offset, Size: blk.dataLen})
	}
	if err := a.applyBlock(volIdx, dsrc, blk); err != nil {
		return err
	}
	return a.parseFromVolume(volIdx, dsrc)
}

func (a *Archive) firstBlockAfterKey(src byteSource) (*parsedBlock, error) {
	if a.version == VersionRAR5 {
		return newBlock5Reader(src, a.cfg).next()
	}
	return newBlock3Reader(src, a.cfg).next()
}

func (a *Archive) applyBlock(volIdx int, src byteSource, blk *parsedBlock) error {
	switch blk.kind {
	case blockMain:
		if blk.main.NewNumbering {
			a.newNumbering = true
		}
	case blockFile:
		return a.entries.addFile(blk.file, a.volumes[volIdx], blk.dataOffset, blk.dataLen)
	case blockSub:
		a.maybeReadComment(src, blk)
	case blockComment:
		if blk.comment != nil {
			a.comment = blk.comment.Text
			a.hasComment = true
		}
	case blockEndArc:
		if blk.endArc.NextVolume && !a.cfg.PartOnly {
			return a.openNextVolume(volIdx)
		}
		a.indexEntries()
	}
	return nil
}

// Volumes returns every volume path discovered so far, in order.
func (a *Archive) Volumes() []string { return append([]string{}, a.volumes...) }

// DiscoverVolumes speculatively probes the filesystem, concurrently,
// for every volume the naming convention predicts from the last volume
// Volumes() knows about, beyond what parsing itself has opened. It is
// meant for diagnostic and housekeeping tools (e.g. "which files would a
// cleanup need to remove for this archive?") rather than for driving
// Open/Entries/Read, which never need more than the volumes parsing
// actually walks.
func (a *Archive) DiscoverVolumes(ctx context.Context) ([]string, error) {
	last := a.volumes[len(a.volumes)-1]
	return discoverVolumes(ctx, a.fsys, last, a.newNumbering, maxDiscoverVolumes)
}

// Entries returns the logical entry list in archive order. It is empty
// until a required password has been set.
func (a *Archive) Entries() []*Entry {
	if a.needsPassword {
		return nil
	}
	return append([]*Entry{}, a.entries.entries...)
}

// Entry looks up one logical entry by name, tolerating '/' vs '\'
// separator differences.
func (a *Archive) Entry(name string) (*Entry, error) {
	if a.needsPassword {
		return nil, ErrPasswordRequired
	}
	e, ok := a.byName[normalizeEntryName(name)]
	if !ok {
		return nil, ErrNoEntry
	}
	return e, nil
}

// Open returns a Reader over the named entry's stored data.
func (a *Archive) Open(name string) (*Reader, error) {
	e, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	return newReader(e, a.fsys, a.cfg, a.version, a.keys)
}

// Comment returns the archive-level comment, if one was parsed, or ""
// with ok=false when the archive carries none (or still needs a
// password).
func (a *Archive) Comment() (string, bool) {
	if a.needsPassword {
		return "", false
	}
	return a.comment, a.hasComment
}
