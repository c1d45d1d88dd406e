package rarlist

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- RAR3 synthetic block builders -----------------------------------
//
// Fixtures are built byte-by-byte with a real header CRC, since the
// parser rejects any block whose CRC doesn't check out.

var sig3 = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}

// buildFile3Block assembles one complete RAR3 FILE header (and returns
// it without the trailing data bytes, which the caller appends).
func buildFile3Block(t *testing.T, name string, flags uint16, compressSize, fileSize, crcField, dosStamp uint32) []byte {
	return buildFile3BlockTyped(t, 0x74, name, flags, compressSize, fileSize, crcField, dosStamp)
}

// buildFile3BlockTyped is buildFile3Block with the block type byte
// exposed, so SUB (0x7A) auxiliary streams can reuse the same layout.
func buildFile3BlockTyped(t *testing.T, typ byte, name string, flags uint16, compressSize, fileSize, crcField, dosStamp uint32) []byte {
	t.Helper()
	nameBytes := []byte(name)
	payload := make([]byte, 25+len(nameBytes))
	binary.LittleEndian.PutUint32(payload[0:], compressSize)
	binary.LittleEndian.PutUint32(payload[4:], fileSize)
	payload[8] = 0 // host OS
	binary.LittleEndian.PutUint32(payload[9:], crcField)
	binary.LittleEndian.PutUint32(payload[13:], dosStamp)
	payload[17] = 29   // extract version
	payload[18] = 0x30 // MethodStored
	binary.LittleEndian.PutUint16(payload[19:], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint32(payload[21:], 0) // mode
	copy(payload[25:], nameBytes)

	headerSize := 7 + len(payload)
	rest := make([]byte, 0, 5+len(payload))
	rest = append(rest, typ)
	var fl [2]byte
	binary.LittleEndian.PutUint16(fl[:], flags)
	rest = append(rest, fl[:]...)
	var sz [2]byte
	binary.LittleEndian.PutUint16(sz[:], uint16(headerSize))
	rest = append(rest, sz[:]...)
	rest = append(rest, payload...)

	crc := crc32.ChecksumIEEE(rest)
	block := make([]byte, 2, 2+len(rest))
	binary.LittleEndian.PutUint16(block, uint16(crc))
	block = append(block, rest...)
	return block
}

func rar3Archive(blocks ...[]byte) []byte {
	out := append([]byte{}, sig3...)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

func TestArchiveRAR3StoredSingleVolume(t *testing.T) {
	content := []byte("hello world, stored without compression")
	crc := crc32.ChecksumIEEE(content)

	header := buildFile3Block(t, "hello.txt", 0, uint32(len(content)), uint32(len(content)), crc, 0)
	data := rar3Archive(append(header, content...))

	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}

	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)
	require.False(t, a.NeedsPassword())

	entries := a.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "hello.txt", entries[0].Name)
	assert.EqualValues(t, len(content), entries[0].Size)
	assert.Equal(t, crc, entries[0].CRC32)
	assert.False(t, entries[0].IsDir)

	r, err := a.Open("hello.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	require.NoError(t, r.Close())
}

func TestArchiveRAR3HeaderCRCMismatchRecovered(t *testing.T) {
	content := []byte("irrelevant")
	header := buildFile3Block(t, "broken.txt", 0, uint32(len(content)), uint32(len(content)), crc32.ChecksumIEEE(content), 0)
	// Corrupt the stored header CRC so the block is unrecoverable.
	header[0] ^= 0xFF
	data := rar3Archive(append(header, content...))

	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}
	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err, "a header CRC failure is recoverable, not a hard error")
	assert.Empty(t, a.Entries())
}

func TestArchiveRAR3SplitAcrossVolumes(t *testing.T) {
	full := []byte("this content is split across two rar volumes for testing purposes, ok")
	part1, part2 := full[:30], full[30:]
	crc := crc32.ChecksumIEEE(full)

	h1 := buildFile3Block(t, "multi.bin", r3FileSplitAfter, uint32(len(part1)), uint32(len(full)), 0, 0)
	vol1 := rar3Archive(append(h1, part1...))

	h2 := buildFile3Block(t, "multi.bin", r3FileSplitBefore, uint32(len(part2)), uint32(len(full)), crc, 0)
	vol2 := rar3Archive(append(h2, part2...))

	fsys := fstest.MapFS{
		"multi.rar": &fstest.MapFile{Data: vol1},
		"multi.r00": &fstest.MapFile{Data: vol2},
	}

	a, err := OpenFS(fsys, "multi.rar", Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"multi.rar", "multi.r00"}, a.Volumes())

	entries := a.Entries()
	require.Len(t, entries, 1)
	assert.EqualValues(t, len(full), entries[0].Size)
	assert.Equal(t, crc, entries[0].CRC32)

	r, err := a.Open("multi.bin")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, full, got)
	require.NoError(t, r.Close())
}

func TestArchiveRAR3MidSplitOpenFails(t *testing.T) {
	content := []byte("continuation only, no opening fragment")
	header := buildFile3Block(t, "tail.bin", r3FileSplitBefore, uint32(len(content)), uint32(len(content)), crc32.ChecksumIEEE(content), 0)
	data := rar3Archive(append(header, content...))

	fsys := fstest.MapFS{"tail.r00": &fstest.MapFile{Data: data}}
	_, err := OpenFS(fsys, "tail.r00", Config{})
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindNeedFirstVolume, rerr.Kind)
}

func TestArchiveEntryNotFound(t *testing.T) {
	content := []byte("x")
	header := buildFile3Block(t, "present.txt", 0, uint32(len(content)), uint32(len(content)), crc32.ChecksumIEEE(content), 0)
	data := rar3Archive(append(header, content...))

	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}
	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)

	_, err = a.Entry("missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestArchiveCommentOldBlock(t *testing.T) {
	text := []byte("archive comment text")
	// LONG_BLOCK add_size(4), then the OLD_COMMENT sub-header:
	// UnpSize(2) UnpVer(1) Method(1) CommCRC(2). Comment data follows the
	// header as the block's data area.
	payload := make([]byte, 10)
	binary.LittleEndian.PutUint32(payload[0:], uint32(len(text)))
	binary.LittleEndian.PutUint16(payload[4:], uint16(len(text)))
	payload[6] = 29
	payload[7] = 0x30 // stored
	binary.LittleEndian.PutUint16(payload[8:], uint16(crc32.ChecksumIEEE(text)))

	headerSize := 7 + len(payload)
	rest := []byte{0x75} // r3TypeOldComment
	var fl, sz [2]byte
	binary.LittleEndian.PutUint16(fl[:], r3LongBlock)
	binary.LittleEndian.PutUint16(sz[:], uint16(headerSize))
	rest = append(rest, fl[:]...)
	rest = append(rest, sz[:]...)
	rest = append(rest, payload...)
	crc := crc32.ChecksumIEEE(rest)
	block := make([]byte, 2, 2+len(rest))
	binary.LittleEndian.PutUint16(block, uint16(crc))
	block = append(block, rest...)
	block = append(block, text...)

	data := rar3Archive(block)
	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}
	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)

	comment, ok := a.Comment()
	require.True(t, ok)
	assert.Equal(t, string(text), comment)
}

func TestArchiveCommentFromCMTSubBlock(t *testing.T) {
	text := []byte("RARcomment\n")
	cmt := buildFile3BlockTyped(t, 0x7A, "CMT", 0, uint32(len(text)), uint32(len(text)), crc32.ChecksumIEEE(text), 0)

	content := []byte("real file body")
	file := buildFile3Block(t, "file1.txt", 0, uint32(len(content)), uint32(len(content)), crc32.ChecksumIEEE(content), 0)

	data := rar3Archive(append(cmt, text...), append(file, content...))
	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}
	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)

	// The CMT auxiliary stream becomes the comment, not an entry.
	entries := a.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "file1.txt", entries[0].Name)

	comment, ok := a.Comment()
	require.True(t, ok)
	assert.Equal(t, string(text), comment)
}

func TestReaderSeekClampsAndInvalidatesCRC(t *testing.T) {
	content := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	crc := crc32.ChecksumIEEE(content)
	header := buildFile3Block(t, "seek.bin", 0, uint32(len(content)), uint32(len(content)), crc, 0)
	data := rar3Archive(append(header, content...))

	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}
	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)

	r, err := a.Open("seek.bin")
	require.NoError(t, err)
	defer r.Close()

	// Seeking past the end clamps to the entry size.
	pos, err := r.Seek(int64(len(content))+100, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, len(content), pos)

	// Seeking before the start clamps to 0.
	pos, err = r.Seek(-5, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pos)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// A middle seek reads exactly the clamped suffix.
	r2, err := a.Open("seek.bin")
	require.NoError(t, err)
	defer r2.Close()
	_, err = r2.Seek(10, io.SeekStart)
	require.NoError(t, err)
	got2, err := io.ReadAll(r2)
	require.NoError(t, err)
	assert.Equal(t, content[10:], got2)
}

func TestReaderSeekDisablesCRCVerification(t *testing.T) {
	content := []byte("crc verification should not run after a seek")
	// Deliberately wrong CRC: if seek didn't disable verification, Read
	// to EOF would surface a BadArchive CRC mismatch.
	header := buildFile3Block(t, "nocrc.bin", 0, uint32(len(content)), uint32(len(content)), 0xDEADBEEF, 0)
	data := rar3Archive(append(header, content...))

	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}
	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)

	r, err := a.Open("nocrc.bin")
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Seek(1, io.SeekStart)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content[1:], got)
}

// --- encryption ------------------------------------------------------

// buildMain3Block assembles a RAR3 MAIN header; when encrypted, the
// caller must append the 8-byte salt right after it.
func buildMain3Block(t *testing.T, flags uint16) []byte {
	t.Helper()
	payload := make([]byte, 6)
	rest := []byte{0x73} // r3TypeMain
	var fl, sz [2]byte
	binary.LittleEndian.PutUint16(fl[:], flags)
	binary.LittleEndian.PutUint16(sz[:], uint16(7+len(payload)))
	rest = append(rest, fl[:]...)
	rest = append(rest, sz[:]...)
	rest = append(rest, payload...)
	crc := crc32.ChecksumIEEE(rest)
	block := make([]byte, 2, 2+len(rest))
	binary.LittleEndian.PutUint16(block, uint16(crc))
	return append(block, rest...)
}

func buildEndArc3Block(t *testing.T) []byte {
	t.Helper()
	rest := []byte{0x7B, 0x00, 0x00, 0x07, 0x00} // type, flags, headerSize
	crc := crc32.ChecksumIEEE(rest)
	block := make([]byte, 2, 2+len(rest))
	binary.LittleEndian.PutUint16(block, uint16(crc))
	return append(block, rest...)
}

// buildEncFile3Block assembles a RAR3 FILE header for a stored,
// password-protected member: SALT flag set, the 8-byte salt stored after
// the name.
func buildEncFile3Block(t *testing.T, name string, compressSize, fileSize, crcField uint32, salt []byte) []byte {
	t.Helper()
	require.Len(t, salt, 8)
	flags := uint16(r3FilePassword | r3FileSalt)
	nameBytes := []byte(name)
	payload := make([]byte, 25+len(nameBytes), 25+len(nameBytes)+8)
	binary.LittleEndian.PutUint32(payload[0:], compressSize)
	binary.LittleEndian.PutUint32(payload[4:], fileSize)
	binary.LittleEndian.PutUint32(payload[9:], crcField)
	payload[17] = 29
	payload[18] = 0x30 // MethodStored
	binary.LittleEndian.PutUint16(payload[19:], uint16(len(nameBytes)))
	copy(payload[25:], nameBytes)
	payload = append(payload, salt...)

	rest := []byte{0x74}
	var fl, sz [2]byte
	binary.LittleEndian.PutUint16(fl[:], flags)
	binary.LittleEndian.PutUint16(sz[:], uint16(7+len(payload)))
	rest = append(rest, fl[:]...)
	rest = append(rest, sz[:]...)
	rest = append(rest, payload...)
	crc := crc32.ChecksumIEEE(rest)
	block := make([]byte, 2, 2+len(rest))
	binary.LittleEndian.PutUint16(block, uint16(crc))
	return append(block, rest...)
}

func pad16(b []byte) []byte {
	out := append([]byte{}, b...)
	for len(out)%16 != 0 {
		out = append(out, 0)
	}
	return out
}

func aesEncryptCBC(t *testing.T, key, iv, plaintext []byte) []byte {
	t.Helper()
	blk, err := aes.NewCipher(key)
	require.NoError(t, err)
	ct := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(blk, iv).CryptBlocks(ct, plaintext)
	return ct
}

func TestArchiveRAR3EncryptedDataEntry(t *testing.T) {
	content := []byte("secret contents protected by a password, stored not compressed")
	crc := crc32.ChecksumIEEE(content)
	salt := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	key, iv := rar3S2K("password", salt)
	ct := aesEncryptCBC(t, key, iv, pad16(content))

	header := buildEncFile3Block(t, "secret.txt", uint32(len(ct)), uint32(len(content)), crc, salt)
	data := rar3Archive(append(header, ct...))
	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}

	// No password: listing works, reading doesn't.
	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)
	entries := a.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Encrypted)
	_, err = a.Open("secret.txt")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	// Correct password decrypts and passes the CRC check.
	a, err = OpenFS(fsys, "archive.rar", Config{Password: "password"})
	require.NoError(t, err)
	r, err := a.Open("secret.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	require.NoError(t, r.Close())

	// Wrong password yields garbage plaintext, caught by the CRC check.
	a, err = OpenFS(fsys, "archive.rar", Config{Password: "hunter2"})
	require.NoError(t, err)
	r, err = a.Open("secret.txt")
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindBadArchive, rerr.Kind)
}

func TestArchiveRAR3HeaderEncrypted(t *testing.T) {
	text := []byte("RARcomment\n")
	cmt := append(buildFile3BlockTyped(t, 0x7A, "CMT", 0, uint32(len(text)), uint32(len(text)), crc32.ChecksumIEEE(text), 0), text...)
	c1 := []byte("first file body")
	c2 := []byte("second file body")
	f1 := append(buildFile3Block(t, "file1.txt", 0, uint32(len(c1)), uint32(len(c1)), crc32.ChecksumIEEE(c1), 0), c1...)
	f2 := append(buildFile3Block(t, "file2.txt", 0, uint32(len(c2)), uint32(len(c2)), crc32.ChecksumIEEE(c2), 0), c2...)
	end := buildEndArc3Block(t)

	var stream []byte
	stream = append(stream, cmt...)
	stream = append(stream, f1...)
	stream = append(stream, f2...)
	stream = append(stream, end...)

	salt := []byte{8, 7, 6, 5, 4, 3, 2, 1}
	key, iv := rar3S2K("password", salt)
	ct := aesEncryptCBC(t, key, iv, pad16(stream))

	data := append([]byte{}, sig3...)
	data = append(data, buildMain3Block(t, r3MainPassword)...)
	data = append(data, salt...)
	data = append(data, ct...)
	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}

	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)
	assert.True(t, a.NeedsPassword())
	assert.Empty(t, a.Entries())
	_, ok := a.Comment()
	assert.False(t, ok)

	// A wrong password fails the first decrypted header's CRC.
	err = a.SetPassword("hunter2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.True(t, a.NeedsPassword())

	// The right password resumes parsing on the same handle.
	require.NoError(t, a.SetPassword("password"))
	assert.False(t, a.NeedsPassword())

	entries := a.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "file1.txt", entries[0].Name)
	assert.Equal(t, "file2.txt", entries[1].Name)

	comment, ok := a.Comment()
	require.True(t, ok)
	assert.Equal(t, string(text), comment)
}

// --- RAR5 ------------------------------------------------------------

var sig5 = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}

func rar5Varint(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

// buildFile5Block assembles one complete RAR5 FILE record for a stored
// (method 0), non-directory file with a data-CRC and data area.
func buildFile5Block(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	crc := crc32.ChecksumIEEE(content)

	var body []byte
	body = append(body, rar5Varint(uint64(r5TypeFile))...)
	headFlags := uint64(r5HeadData)
	body = append(body, rar5Varint(headFlags)...)
	body = append(body, rar5Varint(uint64(len(content)))...) // data_size

	// FILE record fields: fileFlags, unpackedSize, attrs, [mtime], crc,
	// compInfo, hostOS, nameLen, name.
	body = append(body, rar5Varint(r5FileCRC32)...)
	body = append(body, rar5Varint(uint64(len(content)))...)
	body = append(body, rar5Varint(0)...) // attrs
	var crcBytes [4]byte
	binary.LittleEndian.PutUint32(crcBytes[:], crc)
	body = append(body, crcBytes[:]...)
	body = append(body, rar5Varint(0)...) // compInfo: method 0 (stored)
	body = append(body, rar5Varint(0)...) // hostOS
	nameBytes := []byte(name)
	body = append(body, rar5Varint(uint64(len(nameBytes)))...)
	body = append(body, nameBytes...)

	crcField := blockCRC32(body)
	var out []byte
	var crcHdr [4]byte
	binary.LittleEndian.PutUint32(crcHdr[:], crcField)
	out = append(out, crcHdr[:]...)
	out = append(out, rar5Varint(uint64(len(body)))...)
	out = append(out, body...)
	out = append(out, content...)
	return out
}

func TestArchiveRAR5StoredSingleVolume(t *testing.T) {
	content := []byte("rar5 stored payload, no compression applied here")
	block := buildFile5Block(t, "five.txt", content)
	data := append(append([]byte{}, sig5...), block...)

	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}
	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)

	entries := a.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "five.txt", entries[0].Name)
	assert.EqualValues(t, len(content), entries[0].Size)
	assert.Equal(t, crc32.ChecksumIEEE(content), entries[0].CRC32)

	r, err := a.Open("five.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	require.NoError(t, r.Close())
}

// buildSplit5Block assembles a RAR5 FILE record for one fragment of a
// split member: unpSize and fullCRC describe the whole logical file,
// part is just this volume's share of the data.
func buildSplit5Block(t *testing.T, name string, splitFlags uint64, part []byte, unpSize uint64, fullCRC uint32) []byte {
	t.Helper()
	var body []byte
	body = append(body, rar5Varint(uint64(r5TypeFile))...)
	body = append(body, rar5Varint(uint64(r5HeadData)|splitFlags)...)
	body = append(body, rar5Varint(uint64(len(part)))...)
	body = append(body, rar5Varint(r5FileCRC32)...)
	body = append(body, rar5Varint(unpSize)...)
	body = append(body, rar5Varint(0)...) // attrs
	var crcBytes [4]byte
	binary.LittleEndian.PutUint32(crcBytes[:], fullCRC)
	body = append(body, crcBytes[:]...)
	body = append(body, rar5Varint(0)...) // compInfo: stored
	body = append(body, rar5Varint(0)...) // hostOS
	nameBytes := []byte(name)
	body = append(body, rar5Varint(uint64(len(nameBytes)))...)
	body = append(body, nameBytes...)

	var out []byte
	var crcHdr [4]byte
	binary.LittleEndian.PutUint32(crcHdr[:], blockCRC32(body))
	out = append(out, crcHdr[:]...)
	out = append(out, rar5Varint(uint64(len(body)))...)
	out = append(out, body...)
	out = append(out, part...)
	return out
}

func buildEndArc5Block(t *testing.T) []byte {
	t.Helper()
	var body []byte
	body = append(body, rar5Varint(uint64(r5TypeEndArc))...)
	body = append(body, rar5Varint(0)...) // header flags
	body = append(body, rar5Varint(0)...) // endarc flags
	var out []byte
	var crcHdr [4]byte
	binary.LittleEndian.PutUint32(crcHdr[:], blockCRC32(body))
	out = append(out, crcHdr[:]...)
	out = append(out, rar5Varint(uint64(len(body)))...)
	return append(out, body...)
}

func buildEnc5Record(t *testing.T, kdfCount byte, salt, iv []byte) []byte {
	t.Helper()
	require.Len(t, salt, 16)
	require.Len(t, iv, 16)
	var body []byte
	body = append(body, rar5Varint(uint64(r5TypeEncrypt))...)
	body = append(body, rar5Varint(0)...) // header flags
	body = append(body, rar5Varint(0)...) // encryption version
	body = append(body, rar5Varint(0)...) // encryption flags
	body = append(body, kdfCount)
	body = append(body, salt...)
	body = append(body, iv...)
	var out []byte
	var crcHdr [4]byte
	binary.LittleEndian.PutUint32(crcHdr[:], blockCRC32(body))
	out = append(out, crcHdr[:]...)
	out = append(out, rar5Varint(uint64(len(body)))...)
	return append(out, body...)
}

func TestArchiveRAR5SplitAcrossVolumes(t *testing.T) {
	full := []byte("rar5 payload large enough to be split over two part volumes here")
	part1, part2 := full[:25], full[25:]
	crc := crc32.ChecksumIEEE(full)

	vol1 := append(append([]byte{}, sig5...), buildSplit5Block(t, "big.bin", r5HeadSplitAfter, part1, uint64(len(full)), crc)...)
	vol2 := append(append([]byte{}, sig5...), buildSplit5Block(t, "big.bin", r5HeadSplitBefore, part2, uint64(len(full)), crc)...)
	vol2 = append(vol2, buildEndArc5Block(t)...)

	fsys := fstest.MapFS{
		"arc.part1.rar": &fstest.MapFile{Data: vol1},
		"arc.part2.rar": &fstest.MapFile{Data: vol2},
	}

	a, err := OpenFS(fsys, "arc.part1.rar", Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"arc.part1.rar", "arc.part2.rar"}, a.Volumes())

	entries := a.Entries()
	require.Len(t, entries, 1)
	assert.EqualValues(t, len(full), entries[0].Size)

	r, err := a.Open("big.bin")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, full, got)
	require.NoError(t, r.Close())
}

func TestArchiveRAR5HeaderEncrypted(t *testing.T) {
	content := []byte("rar5 member behind an encrypted header")
	stream := buildFile5Block(t, "five.txt", content)
	stream = append(stream, buildEndArc5Block(t)...)

	salt := make([]byte, 16)
	iv := make([]byte, 16)
	for i := range salt {
		salt[i] = byte(i + 1)
		iv[i] = byte(0x40 + i)
	}
	const kdfCount = 4
	key := rar5KDF("password", salt, 1<<kdfCount)
	ct := aesEncryptCBC(t, key, iv, pad16(stream))

	data := append([]byte{}, sig5...)
	data = append(data, buildEnc5Record(t, kdfCount, salt, iv)...)
	data = append(data, ct...)
	fsys := fstest.MapFS{"archive.rar": &fstest.MapFile{Data: data}}

	a, err := OpenFS(fsys, "archive.rar", Config{})
	require.NoError(t, err)
	assert.True(t, a.NeedsPassword())
	assert.Empty(t, a.Entries())

	err = a.SetPassword("hunter2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, a.SetPassword("password"))
	entries := a.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "five.txt", entries[0].Name)
	assert.EqualValues(t, len(content), entries[0].Size)
}

// --- volume naming ---------------------------------------------------

func TestNextVolumeOld(t *testing.T) {
	cases := []struct{ in, want string }{
		{"movie.rar", "movie.r00"},
		{"movie.r00", "movie.r01"},
		{"movie.r99", "movie.s00"},
	}
	for _, c := range cases {
		got, err := nextVolumeOld(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.in)
	}
	_, err := nextVolumeOld("movie.txt")
	assert.Error(t, err)
}

func TestNextVolumeNew(t *testing.T) {
	cases := []struct{ in, want string }{
		{"movie.part01.rar", "movie.part02.rar"},
		{"movie.part99.rar", "movie.paru00.rar"},
	}
	for _, c := range cases {
		got, err := nextVolumeNew(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.in)
	}
	_, err := nextVolumeNew("nodigitshere.rar")
	assert.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindBadVolumeName, rerr.Kind)
}

// --- sanitize --------------------------------------------------------

func TestSanitizeUnix(t *testing.T) {
	assert.Equal(t, "asd/asd", SanitizeUnix("asd/../asd"))
	assert.Equal(t, "a/b", SanitizeUnix("/a/b"))
	assert.Equal(t, "a/b", SanitizeUnix("./a/./b"))
	// ':' is only reserved on Windows.
	assert.Equal(t, "z____:", SanitizeUnix("z<>*?:"))
}

func TestSanitizeWindows(t *testing.T) {
	assert.Equal(t, "a/x", SanitizeWindows("c:/a/x"))
	assert.Equal(t, "z_____", SanitizeWindows("z<>*?:"))
	assert.Equal(t, "_CON", SanitizeWindows("CON"))
	assert.Equal(t, "name", SanitizeWindows("name. "))
}

// --- DOS time --------------------------------------------------------

func TestDecodeDOSTime(t *testing.T) {
	d := decodeDOSTime(0x3C21A85D)
	assert.Equal(t, dosTime{Year: 2010, Month: 1, Day: 1, Hour: 21, Min: 2, Sec: 58}, d)
}

func TestParseExtTimeSubSecondPrecision(t *testing.T) {
	base := decodeDOSTime(0x3C21A85D)

	// The precision bytes fill a 3-byte accumulator of 100-ns units from
	// the most significant end, so one byte 0x01 means 0x010000 units.
	cases := []struct {
		name   string
		nibble uint16
		extra  []byte
		want   time.Duration
	}{
		{"one byte", 0x9, []byte{0x01}, 0x010000 * 100 * time.Nanosecond},
		{"two bytes", 0xA, []byte{0x12, 0x34}, 0x123400 * 100 * time.Nanosecond},
		{"three bytes", 0xB, []byte{0x12, 0x34, 0x56}, 0x123456 * 100 * time.Nanosecond},
		{"round up, no bytes", 0xC, nil, time.Second},
	}
	for _, c := range cases {
		buf := make([]byte, 2, 2+len(c.extra))
		binary.LittleEndian.PutUint16(buf, c.nibble<<12) // mtime nibble
		buf = append(buf, c.extra...)

		res, err := parseExtTime(buf, base)
		require.NoError(t, err, c.name)
		require.True(t, res.HasMTime, c.name)
		assert.Equal(t, base.Time().Add(c.want), res.MTime, c.name)
		assert.False(t, res.HasCTime, c.name)
	}
}

func TestParseExtTimeCTimeCarriesOwnBase(t *testing.T) {
	mtimeBase := decodeDOSTime(0x3C21A85D)
	ctimeStamp := uint32(0x3C21A85D)

	buf := make([]byte, 2, 2+4+1)
	binary.LittleEndian.PutUint16(buf, 0x9<<8) // ctime nibble: one precision byte
	var stamp [4]byte
	binary.LittleEndian.PutUint32(stamp[:], ctimeStamp)
	buf = append(buf, stamp[:]...)
	buf = append(buf, 0x01)

	res, err := parseExtTime(buf, mtimeBase)
	require.NoError(t, err)
	assert.False(t, res.HasMTime)
	require.True(t, res.HasCTime)
	assert.Equal(t, decodeDOSTime(ctimeStamp).Time().Add(0x010000*100*time.Nanosecond), res.CTime)
}
