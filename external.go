package rarlist

import (
	"context"
	"io"
)

// Decompressor is the contract an external decompressor tool must satisfy.
// This library never shells out itself: LZSS/PPMd decompression and the
// subprocess protocol are an external collaborator's concern.
// Decompress is expected to invoke the tool with an argument
// vector of the shape (tool, <args>, archivePath, entryName) and return
// its standard output as the decompressed byte stream; standard error is
// the caller's concern to discard or log.
//
// Archive.Open never calls a Decompressor: it returns an
// ErrUnsupportedFeature error for any entry whose CompressMethod is not
// Stored, whether Config.Decompressor is nil or not.
type Decompressor interface {
	Decompress(ctx context.Context, archivePath, entryName string) (io.ReadCloser, error)
}

// ExitCode enumerates the exit statuses the unrar-style external tools
// use.
type ExitCode int

const (
	ExitOK        ExitCode = 0
	ExitWarning   ExitCode = 1
	ExitFatal     ExitCode = 2
	ExitCRC       ExitCode = 3
	ExitLocked    ExitCode = 4
	ExitWrite     ExitCode = 5
	ExitOpen      ExitCode = 6
	ExitUsage     ExitCode = 7
	ExitMemory    ExitCode = 8
	ExitCreate    ExitCode = 9
	ExitNoFiles   ExitCode = 10
	ExitPassword  ExitCode = 11
	ExitUserBreak ExitCode = 255
)

// ExitCodeError wraps a non-zero exit status from an external
// decompressor, for Decompressor implementations that want a uniform
// error shape.
type ExitCodeError struct {
	Code ExitCode
}

func (e *ExitCodeError) Error() string {
	switch e.Code {
	case ExitWarning:
		return "external decompressor: warning"
	case ExitFatal:
		return "external decompressor: fatal error"
	case ExitCRC:
		return "external decompressor: CRC error"
	case ExitLocked:
		return "external decompressor: archive locked"
	case ExitWrite:
		return "external decompressor: write error"
	case ExitOpen:
		return "external decompressor: open error"
	case ExitUsage:
		return "external decompressor: usage error"
	case ExitMemory:
		return "external decompressor: out of memory"
	case ExitCreate:
		return "external decompressor: create error"
	case ExitNoFiles:
		return "external decompressor: no files matched"
	case ExitPassword:
		return "external decompressor: wrong password"
	case ExitUserBreak:
		return "external decompressor: interrupted by user"
	default:
		return "external decompressor: unknown exit code"
	}
}
