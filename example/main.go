// Command rarlist-ls lists the entries of a (possibly multi-volume) RAR
// archive as JSON, using only the first volume's path.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/solidbyte/rarlist"
)

type entryJSON struct {
	Name           string `json:"name"`
	Size           int64  `json:"size"`
	CompressedSize int64  `json:"compressedSize"`
	CRC32          uint32 `json:"crc32"`
	Stored         bool   `json:"stored"`
	Encrypted      bool   `json:"encrypted"`
	Directory      bool   `json:"directory"`
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <first-volume>.rar [password]", os.Args[0])
	}
	first := os.Args[1]

	cfg := rarlist.Config{}
	if len(os.Args) > 2 {
		cfg.Password = os.Args[2]
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

	out := make([]entryJSON, 0, len(a.Entries()))
	for _, e := range a.Entries() {
		out = append(out, entryJSON{
			Name:           e.Name,
			Size:           e.Size,
			CompressedSize: e.CompressedSize,
			CRC32:          e.CRC32,
			Stored:         e.CompressMethod == rarlist.MethodStored,
			Encrypted:      e.Encrypted,
			Directory:      e.IsDir,
		})
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
