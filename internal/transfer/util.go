package transfer

import (
	"fmt"
	"os"
	"path/filepath"
)

// allocatePath picks a destination path for an incoming file under
// dir. On a name collision it appends _1, _2, … until it finds a free
// name, per the incoming-transfer algorithm's unique_name contract
// (spec §4.3 step 1) — unlike a bounded retry count, this is
// guaranteed to terminate with a usable path rather than an error.
func allocatePath(dir, filename string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("transfer: create download dir: %w", err)
	}

	base := filepath.Base(filename)
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "download"
	}
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	candidate := filepath.Join(dir, base)
	if !exists(candidate) {
		return candidate, nil
	}

	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d%s", stem, i, ext)
		candidate = filepath.Join(dir, name)
		if !exists(candidate) {
			return candidate, nil
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
