package rarlist

// Version identifies which container format an archive uses.
type Version string

const (
	VersionUnknown Version = "UNKNOWN"
	VersionRAR3    Version = "RAR3"
	VersionRAR5    Version = "RAR5"
)

// Archive signatures: RAR3 is 7 bytes, RAR5 is 8.
var (
	sigRAR3 = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}
	sigRAR5 = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}
)

// sfxScanWindow bounds how far into a file we search for a signature
// when the archive is a self-extracting (SFX) executable with the RAR
// payload appended after a Windows PE stub.
const sfxScanWindow = 1 << 20 // 1 MiB
