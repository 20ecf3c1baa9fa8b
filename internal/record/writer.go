package record

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kogorman/sdclone/internal/pipeline"
)

// Writer lays down one clone run. The run directory must not already exist:
// a timestamp collision means a concurrent or replayed clone and is refused
// rather than merged.
type Writer struct {
	// Dir is the run directory, <root>/<timestamp>.
	Dir string
}

// NewWriter creates the run directory for the given clone start time.
func NewWriter(root string, now time.Time) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create destination root %q: %w", root, err)
	}
	dir := filepath.Join(root, now.Format(TimestampLayout))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory %q: %w", dir, err)
	}
	return &Writer{Dir: dir}, nil
}

// Path resolves a run-relative path.
func (w *Writer) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Dir}, elem...)...)
}

// WriteFile persists one artifact under the run directory, creating parent
// directories as needed.
func (w *Writer) WriteFile(rel string, data []byte) error {
	path := w.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %q: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

// WriteResult persists the stdout, stderr and return code of one external
// command under prefix, e.g. prefix "sfdisk-dump/dump" yields dump-stdout,
// dump-stderr and dump-returncode. The result is recorded whether or not the
// command succeeded; failed runs leave their diagnostics behind.
func (w *Writer) WriteResult(prefix string, res pipeline.Result) error {
	if err := w.WriteFile(prefix+SuffixStdout, res.Stdout); err != nil {
		return err
	}
	if err := w.WriteFile(prefix+SuffixStderr, res.Stderr); err != nil {
		return err
	}
	return w.WriteFile(prefix+SuffixReturncode, []byte(strconv.Itoa(res.ExitCode)+"\n"))
}

// WritePartitionTemplates persists the writer template, the instantiated
// command actually run (or the None placeholder), and the reader template
// for one partition.
func (w *Writer) WritePartitionTemplates(idx int, writer, wrote, reader *pipeline.Pipeline) error {
	dir := PartDir(idx)
	if err := w.WriteFile(filepath.Join(dir, FileWriter), pipeline.Encode(writer)); err != nil {
		return err
	}
	if err := w.WriteFile(filepath.Join(dir, FileWrote), pipeline.Encode(wrote)); err != nil {
		return err
	}
	return w.WriteFile(filepath.Join(dir, FileReader), pipeline.Encode(reader))
}

// CopySelf copies the running executable into the run directory as a
// provenance artifact: the backup carries the program that produced it.
func (w *Writer) CopySelf(exePath string) error {
	src, err := os.Open(exePath)
	if err != nil {
		return fmt.Errorf("open executable %q: %w", exePath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(w.Path(FileProvenance), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create provenance artifact: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy provenance artifact: %w", err)
	}
	return nil
}
