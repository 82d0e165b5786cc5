package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// fitsBlock matches the FITS logical record length. Fixtures written in
// multiples of it look plausible to size-based settle checks without the
// cost of a real header.
const fitsBlock = 2880

// WriteFile creates path with exactly size bytes of filler. Watch and
// staging tests use it to stand in for exposure files whose content never
// gets parsed. A size <= 0 writes a single byte so the file still exists.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	block := bytes.Repeat([]byte{' '}, fitsBlock)
	copy(block, []byte("SIMPLE  =                    T"))

	for remaining := size; remaining > 0; {
		n := int64(len(block))
		if remaining < n {
			n = remaining
		}
		if _, err := f.Write(block[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= n
	}
}
