package util

import "testing"

func TestDecodeRar3UnicodeNoEncodedPart(t *testing.T) {
	if got := DecodeRar3Unicode([]byte("abc"), nil); got != "abc" {
		t.Fatalf("want abc got %s", got)
	}
}

func TestDecodeRar3UnicodeOpcode0LiteralByte(t *testing.T) {
	// hi=0x00, flags=0x00 selects opcode 0 three times: each unit comes
	// straight from the encoded stream paired with a zero high byte.
	got := DecodeRar3Unicode([]byte("abc"), []byte{0x00, 0x00, 'a', 'b', 'c'})
	if got != "abc" {
		t.Fatalf("want abc got %q", got)
	}
}

func TestDecodeRar3UnicodeOpcode1HighByteTemplate(t *testing.T) {
	// hi=0x00, flags=0x40 selects opcode 1 once: pairs the next encoded
	// byte with the template high byte from the stream's first byte.
	got := DecodeRar3Unicode(nil, []byte{0x00, 0x40, 'Z'})
	if got != "Z" {
		t.Fatalf("want Z got %q", got)
	}
}

func TestDecodeRar3UnicodeOpcode2ExplicitPair(t *testing.T) {
	// hi=0x00, flags=0x80 selects opcode 2: an explicit lo/hi byte pair,
	// independent of the template high byte.
	got := DecodeRar3Unicode(nil, []byte{0x00, 0x80, 0x05, 0x04})
	want := string(rune(0x0405))
	if got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestDecodeRar3UnicodeOpcode3CopyFromAscii(t *testing.T) {
	// hi=0x00, flags=0xC0 selects opcode 3 with n=0x00 (no high bit):
	// copy n+2=2 units straight from asciiPart.
	got := DecodeRar3Unicode([]byte("xy"), []byte{0x00, 0xC0, 0x00})
	if got != "xy" {
		t.Fatalf("want xy got %q", got)
	}
}

func TestDecodeRar3UnicodeOpcode3CorrectedCopy(t *testing.T) {
	// n=0x81 (high bit set, n&0x7f=1) copies (1+2)=3 units from
	// asciiPart, each offset by the correction byte and paired with hi.
	got := DecodeRar3Unicode([]byte("abc"), []byte{0x01, 0xC0, 0x81, 0x00})
	want := string([]rune{0x0161, 0x0162, 0x0163})
	if got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestDecodeRar3UnicodeTruncatedStreamStopsCleanly(t *testing.T) {
	if got := DecodeRar3Unicode([]byte("x"), []byte{0x80}); got != "" {
		t.Fatalf("want empty result from a stream with no opcodes, got %q", got)
	}
}
