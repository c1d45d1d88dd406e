package rarlist

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// decodeName converts a raw RAR3 name (no UNICODE flag) from cfg.Charset
// into UTF-8. Only windows-1252 and iso-8859-1 are recognized by name;
// anything else falls back to treating the bytes as already-valid UTF-8,
// which is what most modern archives actually contain even without the
// UNICODE flag set.
func decodeName(raw []byte, charset string) string {
	var enc encoding.Encoding
	switch charset {
	case "windows-1252", "cp1252", "":
		enc = charmap.Windows1252
	case "iso-8859-1", "latin1":
		enc = charmap.ISO8859_1
	default:
		return string(raw)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
