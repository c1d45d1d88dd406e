package rarlist

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"
)

// nextVolumeOld implements the old ("rar"/"r00"/"r01".../"s00"...) naming
// convention. It is a pure function over the filename: no filesystem
// access.
func nextVolumeOld(name string) (string, error) {
	ext := filepath.Ext(name)
	lower := strings.ToLower(ext)
	if lower == ".rar" {
		return name[:len(name)-len(ext)] + ".r00", nil
	}
	if len(ext) != 4 || ext[0] != '.' {
		return "", newErrf(KindBadVolumeName, nil, "cannot derive next volume from %q", name)
	}
	letter := ext[1]
	d1 := ext[2]
	d2 := ext[3]
	if !isDigit(d1) || !isDigit(d2) {
		return "", newErrf(KindBadVolumeName, nil, "cannot derive next volume from %q", name)
	}
	// Increment the two-digit decimal; carry '9'->'0' bumps the leading
	// letter (r99 -> s00).
	if d2 < '9' {
		d2++
	} else {
		d2 = '0'
		if d1 < '9' {
			d1++
		} else {
			d1 = '0'
			letter++
		}
	}
	base := name[:len(name)-len(ext)]
	return fmt.Sprintf("%s.%c%c%c", base, letter, d1, d2), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

var lastDigitRunRe = regexp.MustCompile(`([0-9]+)[^0-9]*$`)

// nextVolumeNew implements the new (NEWNUMBERING) naming convention:
// locate the last run of ASCII digits and increment it as a
// zero-padded decimal, carrying into the preceding character on overflow
// of the digit run's width (part99.rar -> paru00.rar).
func nextVolumeNew(name string) (string, error) {
	loc := lastDigitRunRe.FindStringSubmatchIndex(name)
	if loc == nil {
		return "", newErrf(KindBadVolumeName, nil, "cannot derive next volume from %q", name)
	}
	start, end := loc[2], loc[3]
	digits := name[start:end]
	width := len(digits)
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return "", newErrf(KindBadVolumeName, err, "cannot derive next volume from %q", name)
	}
	n++
	next := strconv.FormatUint(n, 10)
	if len(next) <= width {
		next = strings.Repeat("0", width-len(next)) + next
		return name[:start] + next + name[end:], nil
	}
	// Digit run overflowed its width: increment the preceding character
	// and reset the digit run to all zeros.
	if start == 0 {
		return "", newErrf(KindBadVolumeName, nil, "cannot derive next volume from %q", name)
	}
	prefix := name[:start-1]
	carried := name[start-1] + 1
	zeros := strings.Repeat("0", width)
	return prefix + string(carried) + zeros + name[end:], nil
}

// nextVolume dispatches to the old or new naming scheme.
func nextVolume(name string, newNumbering bool) (string, error) {
	if newNumbering {
		return nextVolumeNew(name)
	}
	return nextVolumeOld(name)
}

// discoverVolumes speculatively generates up to maxVolumes candidate
// names forward from first using the pure sequencer (nextVolume), then
// validates the whole batch against fsys concurrently via probeExists
// before walking the results to find the longest existing prefix. This
// is used to recover the full volume list for an archive even when
// parsing itself stopped early: a recovered header-CRC failure on a
// middle volume still yields the entries parsed so far, and diagnostic
// tooling built on DiscoverVolumes can still see what's on disk. first
// itself is always included without a Stat check (it was already opened
// by the caller).
func discoverVolumes(ctx context.Context, fsys FileSystem, first string, newNumbering bool, maxVolumes int) ([]string, error) {
	candidates := make([]string, 0, maxVolumes)
	seen := mapset.NewThreadUnsafeSet[string](first)
	cur := first
	for i := 0; i < maxVolumes; i++ {
		next, err := nextVolume(cur, newNumbering)
		if err != nil {
			break // naming scheme exhausted; whatever was found so far stands
		}
		if seen.Contains(next) {
			break // naming scheme cycled back on itself
		}
		candidates = append(candidates, next)
		seen.Add(next)
		cur = next
	}

	exists, err := probeExists(ctx, fsys, candidates)
	if err != nil {
		return nil, err
	}

	vols := []string{first}
	for i, ok := range exists {
		if !ok {
			break
		}
		vols = append(vols, candidates[i])
	}
	return vols, nil
}

// probeExists reports, via a bounded-concurrency errgroup, which of a
// batch of candidate paths exist. Used by discoverVolumes to validate a
// whole speculative volume list up front rather than walking it one Stat
// call at a time.
func probeExists(ctx context.Context, fsys FileSystem, candidates []string) ([]bool, error) {
	out := make([]bool, len(candidates))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_, err := fsys.Stat(c)
			out[i] = err == nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
