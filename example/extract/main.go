// Command rarlist-extract extracts every stored (uncompressed) member of
// a (possibly multi-volume) RAR archive to a directory, stitching split
// fragments across volumes via rarlist.Reader.
//
// IMPORTANT: this only works for members with compression method
// "stored" (0x30); anything else needs an external decompressor (see
// rarlist.Decompressor), which the rarlist package does not call, so
// such members are skipped.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/solidbyte/rarlist"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatalf("usage: %s <first-volume>.rar <output-dir> [password]", os.Args[0])
	}
	first := os.Args[1]
	outDir := os.Args[2]

	cfg := rarlist.Config{}
	if len(os.Args) > 3 {
		cfg.Password = os.Args[3]
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	a, err := rarlist.Open(first, cfg)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	if a.NeedsPassword() {
		if cfg.Password == "" {
			log.Fatalf("archive is header-encrypted; pass a password")
		}
		if err := a.SetPassword(cfg.Password); err != nil {
			log.Fatalf("set password: %v", err)
		}
	}

	for _, e := range a.Entries() {
		if e.IsDir || e.IsSymlink {
			continue
		}
		if e.NeedsExternalDecompressor() {
			fmt.Printf("skipping %s (compression method %d needs an external decompressor)\n", e.Name, e.CompressMethod)
			continue
		}
		if err := extractOne(a, e, outDir); err != nil {
			log.Fatalf("extract %s: %v", e.Name, err)
		}
	}
}

func extractOne(a *rarlist.Archive, e *rarlist.Entry, outDir string) error {
	outPath := filepath.Join(outDir, rarlist.SanitizeUnix(e.Name))

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	r, err := a.Open(e.Name)
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}
	defer func() { _ = r.Close() }()

	outF, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer func() {
		if cerr := outF.Close(); cerr != nil {
			log.Printf("close %s: %v", outPath, cerr)
		}
	}()

	written, err := io.Copy(outF, r)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	fmt.Printf("extracted %s (%d bytes)\n", e.Name, written)
	return nil
}
