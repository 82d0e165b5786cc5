package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"astrodriz/internal/asn"
	"astrodriz/internal/exposure"
	"astrodriz/internal/fileutil"
	"astrodriz/internal/logging"
)

// Relocation holds a dataset being processed away from its archive
// directory.
type Relocation struct {
	OriginalDir string
	WorkDir     string
	// SourcePath is the input file inside WorkDir; runs created for a
	// relocated dataset point here.
	SourcePath string

	logger *slog.Logger
}

// Relocate copies a dataset's files into a fresh directory under workRoot
// named after the dataset rootname. The copy is greedy: every file sharing
// a rootname involved in the dataset comes along, so association members
// and any previous products follow their table.
func Relocate(sourcePath, workRoot string, logger *slog.Logger) (*Relocation, error) {
	dir := filepath.Dir(sourcePath)
	base := filepath.Base(sourcePath)

	roots := []string{rootPrefix(base)}
	if exposure.IsAssociation(sourcePath) {
		table, err := asn.Read(sourcePath)
		if err != nil {
			return nil, err
		}
		for _, member := range table.ExposureMembers() {
			roots = append(roots, member.Name)
		}
		if table.Output != "" {
			roots = append(roots, table.Output)
		}
	}

	workDir := filepath.Join(workRoot, rootPrefix(base))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, root := range roots {
		matches, err := filepath.Glob(filepath.Join(dir, root+"*"))
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			name := filepath.Base(match)
			if seen[name] {
				continue
			}
			seen[name] = true
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if _, err := fileutil.CopyInto(match, workDir); err != nil {
				return nil, err
			}
		}
	}

	return &Relocation{
		OriginalDir: dir,
		WorkDir:     workDir,
		SourcePath:  filepath.Join(workDir, base),
		logger:      logging.NewComponentLogger(logger, "relocate"),
	}, nil
}

// Restore moves everything in the working directory back to the original
// directory, results included, then removes the working directory.
func (r *Relocation) Restore() error {
	entries, err := os.ReadDir(r.WorkDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(r.WorkDir, entry.Name())
		dst := filepath.Join(r.OriginalDir, entry.Name())
		if err := fileutil.MoveFile(src, dst); err != nil {
			return err
		}
	}
	if err := os.Remove(r.WorkDir); err != nil {
		r.logger.Warn("working directory not removed", logging.Error(err))
	}
	return nil
}

func rootPrefix(base string) string {
	if idx := strings.Index(base, "_"); idx > 0 {
		return base[:idx]
	}
	return strings.TrimSuffix(base, ".fits")
}
