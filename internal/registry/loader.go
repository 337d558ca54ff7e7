package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"infera/internal/common/fsutil"
)

// ModelExt is the file extension picked up by ScanDir (matched case-insensitively).
const ModelExt = ".onnx"

// Candidate is a model file found on disk.
type Candidate struct {
	// Name is the filename stem, used as the registry name.
	Name string
	// Path is the absolute file path.
	Path string
}

// ScanDir lists *.onnx files directly inside dir (no recursion), sorted by
// filename. A leading '~' is expanded.
func ScanDir(dir string) ([]Candidate, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []Candidate
	for _, e := range entries {
		if e.IsDir() || !fsutil.HasExt(e.Name(), ModelExt) {
			continue
		}
		p := filepath.Join(abs, e.Name())
		if fi, err := os.Stat(p); err != nil || !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, Candidate{Name: fsutil.Stem(e.Name()), Path: p})
	}
	sort.Slice(out, func(i, j int) bool { return filepath.Base(out[i].Path) < filepath.Base(out[j].Path) })
	return out, nil
}
