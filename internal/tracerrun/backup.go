package tracerrun

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/roar-ml/roar/internal/rerr"
)

// BackupOutputs preserves the previous run's output files at
// .roar/backups/<job_uid>/<relative-path> before the traced command
// overwrites them, implementing spec §5/§6's "[reversible] enabled"
// behavior. Paths that no longer exist on disk (or are directories) are
// skipped rather than failing the run.
func BackupOutputs(roarDir, jobUID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	backupRoot := filepath.Join(roarDir, "backups", jobUID)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		dest := filepath.Join(backupRoot, strings.TrimPrefix(filepath.Clean(p), string(filepath.Separator)))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return rerr.Wrap(rerr.KindPreflight, "create backup directory", err)
		}
		if err := copyFile(p, dest); err != nil {
			return rerr.Wrap(rerr.KindPreflight, "back up "+p, err)
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
