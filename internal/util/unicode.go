// Package util holds small decoding helpers shared by the RAR3 and RAR5
// block parsers that don't need access to the rest of the package.
package util

import "unicode/utf16"

// DecodeRar3Unicode decodes a RAR3 compact Unicode filename: asciiPart is
// the plain name bytes stored ahead of the NUL separator, encData is the
// opcode stream stored after it. The first byte of encData is a "high
// byte" template reused by opcode 1; the remaining bytes are a sequence
// of 2-bit opcodes (4 per flag byte, high bits first):
//
//	0: emit (next encData byte, 0x00)
//	1: emit (next encData byte, hi)
//	2: emit (next encData byte, next encData byte)          - explicit lo/hi pair
//	3: read length byte n; n&0x80 set means copy (n&0x7f)+2 units
//	   from asciiPart, offset by a correction byte and paired with hi;
//	   otherwise copy n+2 units from asciiPart verbatim (hi=0)
//
// Every emitted UTF-16 code unit, whatever its opcode, also advances a
// cursor into asciiPart, so opcode 3 copies from the position that all
// earlier units have reached.
func DecodeRar3Unicode(asciiPart, encData []byte) string {
	if len(encData) == 0 {
		return string(asciiPart)
	}

	var (
		encPos   int
		stdPos   int
		units    []uint16
		flags    byte
		flagBits int
	)

	encByte := func() (byte, bool) {
		if encPos >= len(encData) {
			return 0, false
		}
		b := encData[encPos]
		encPos++
		return b, true
	}
	stdByte := func() byte {
		if stdPos < len(asciiPart) {
			return asciiPart[stdPos]
		}
		return 0
	}
	put := func(lo, hi byte) {
		units = append(units, uint16(lo)|uint16(hi)<<8)
		stdPos++
	}

	hi, ok := encByte()
	if !ok {
		return string(asciiPart)
	}

loop:
	for encPos < len(encData) {
		if flagBits == 0 {
			b, ok := encByte()
			if !ok {
				break loop
			}
			flags = b
			flagBits = 8
		}
		flagBits -= 2
		op := (flags >> uint(flagBits)) & 0x03

		switch op {
		case 0:
			b, ok := encByte()
			if !ok {
				break loop
			}
			put(b, 0)
		case 1:
			b, ok := encByte()
			if !ok {
				break loop
			}
			put(b, hi)
		case 2:
			lo, ok1 := encByte()
			hiByte, ok2 := encByte()
			if !ok1 || !ok2 {
				break loop
			}
			put(lo, hiByte)
		case 3:
			n, ok := encByte()
			if !ok {
				break loop
			}
			if n&0x80 != 0 {
				corr, ok := encByte()
				if !ok {
					break loop
				}
				for i, count := 0, int(n&0x7f)+2; i < count; i++ {
					put(stdByte()+corr, hi)
				}
			} else {
				for i, count := 0, int(n)+2; i < count; i++ {
					put(stdByte(), 0)
				}
			}
		}
	}

	runes := utf16.Decode(units)
	return string(runes)
}
