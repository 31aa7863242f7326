// Package storage keeps client-uploaded videos on local disk until the
// resumed job that needs them reaches a terminal state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultVideoName is used when the upload carries no usable file name.
const DefaultVideoName = "video.mp4"

// ErrOutsideBase is returned when asked to touch a path not under BaseDir.
var ErrOutsideBase = errors.New("path outside storage base dir")

// LocalStorage stores temp videos under BaseDir/jobs/<job-id>/.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: filepath.Clean(baseDir)}
}

// JobPath returns the directory for a job.
func (s *LocalStorage) JobPath(jobID string) string {
	return filepath.Join(s.BaseDir, "jobs", jobID)
}

// SaveVideo writes r to the job directory and returns the file path.
// A partially written file is removed on error.
func (s *LocalStorage) SaveVideo(ctx context.Context, jobID string, r io.Reader, filename string) (string, error) {
	if strings.ContainsAny(jobID, `/\`) || jobID == "" || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	dir := s.JobPath(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, safeName(filename))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create video file %s: %w", path, err)
	}
	if _, err := io.Copy(f, ctxReader{ctx: ctx, r: r}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write video file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close video file: %w", err)
	}
	return path, nil
}

// Delete removes a stored video and its job directory if it is left empty.
// Missing files are not an error.
func (s *LocalStorage) Delete(_ context.Context, path string) error {
	if path == "" {
		return nil
	}
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(s.BaseDir, clean)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: %s", ErrOutsideBase, path)
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", clean, err)
	}
	// Only succeeds when empty.
	_ = os.Remove(filepath.Dir(clean))
	return nil
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return DefaultVideoName
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
