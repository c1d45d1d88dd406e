package rarlist

import (
	"io"

	"github.com/sirupsen/logrus"
)

// BlockInfo is handed to Config.InfoCallback once per parsed block, mainly
// useful for inventory/debugging tools built on top of this package.
type BlockInfo struct {
	Volume string
	Type   string
	Offset int64
	Size   int64
}

// Config carries every knob Open and its relatives recognize. The zero
// value is usable: it decodes non-Unicode RAR3 names as windows-1252,
// verifies CRCs, logs nothing, and opens the next volume automatically on
// ENDARC/NEXT_VOLUME.
type Config struct {
	// Charset is the fallback filename decoding charset for non-Unicode
	// RAR3 names. Defaults to "windows-1252".
	Charset string

	// NoCRCCheck suppresses payload CRC verification on Reader.Read /
	// Close when true.
	NoCRCCheck bool

	// InfoCallback, if set, is invoked once per parsed block in archive
	// order, including blocks that are not file entries.
	InfoCallback func(BlockInfo)

	// Password is used to decrypt header-encrypted archives and
	// password-protected file data. It can also be supplied later via
	// Archive.SetPassword.
	Password string

	// PartOnly, if set, disables automatically opening the next volume
	// when an ENDARC/NEXT_VOLUME boundary is crossed.
	PartOnly bool

	// Decompressor is carried on the Config but not called by this
	// package: Archive.Open refuses every entry whose compression method
	// is not "stored", whether or not a Decompressor is set. See
	// Decompressor for the external-tool contract.
	Decompressor Decompressor

	// Logger receives structured trace/debug output. A nil Logger gets a
	// logrus.Logger with output discarded, so the library is silent
	// unless a caller opts in.
	Logger *logrus.Logger
}

func (c Config) withDefaults() Config {
	if c.Charset == "" {
		c.Charset = "windows-1252"
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
		c.Logger.SetOutput(io.Discard)
	}
	return c
}
