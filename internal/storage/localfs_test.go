package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveVideo_WritesUnderJobDir(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	path, err := s.SaveVideo(context.Background(), "job-1", strings.NewReader("frames"), "clip.mp4")
	if err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}
	if want := filepath.Join(s.BaseDir, "jobs", "job-1", "clip.mp4"); path != want {
		t.Fatalf("path = %q; want %q", path, want)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != "frames" {
		t.Fatalf("content = %q err=%v", b, err)
	}
}

func TestSaveVideo_SanitizesName(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"":                 DefaultVideoName,
		"..":               DefaultVideoName,
		"my clip (1).mov":  "my_clip__1_.mov",
		`C:\vids\a.mp4`:    "a.mp4",
	}
	for in, want := range cases {
		path, err := s.SaveVideo(context.Background(), "j", strings.NewReader("x"), in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if filepath.Base(path) != want || filepath.Dir(path) != s.JobPath("j") {
			t.Fatalf("%q stored at %q; want %s", in, path, want)
		}
	}
}

func TestSaveVideo_RejectsBadJobID(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	for _, id := range []string{"", "..", "a/b"} {
		if _, err := s.SaveVideo(context.Background(), id, strings.NewReader("x"), "v.mp4"); err == nil {
			t.Fatalf("job id %q accepted", id)
		}
	}
}

func TestSaveVideo_CancelledContextLeavesNoFile(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.SaveVideo(ctx, "j", strings.NewReader("x"), "v.mp4"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.JobPath("j"), "v.mp4")); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	ctx := context.Background()
	path, err := s.SaveVideo(ctx, "j", strings.NewReader("x"), "v.mp4")
	if err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}
	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(s.JobPath("j")); !os.IsNotExist(err) {
		t.Fatalf("empty job dir should be removed: %v", err)
	}
	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if err := s.Delete(ctx, ""); err != nil {
		t.Fatalf("empty path: %v", err)
	}
	outside := filepath.Join(filepath.Dir(s.BaseDir), "elsewhere.mp4")
	if err := s.Delete(ctx, outside); !errors.Is(err, ErrOutsideBase) {
		t.Fatalf("want ErrOutsideBase, got %v", err)
	}
	if err := s.Delete(ctx, s.BaseDir); !errors.Is(err, ErrOutsideBase) {
		t.Fatalf("base dir itself must be refused, got %v", err)
	}
}
