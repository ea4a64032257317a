package gdrive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeUploader struct {
	mu        sync.Mutex
	created   []string
	updated   []string
	bodies    []string
	createErr error
}

func (f *fakeUploader) Create(name, folderID string, media io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	body, _ := io.ReadAll(media)
	f.bodies = append(f.bodies, string(body))
	f.created = append(f.created, name)
	return "file-" + name, nil
}

func (f *fakeUploader) Update(fileID string, media io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(media)
	f.bodies = append(f.bodies, string(body))
	f.updated = append(f.updated, fileID)
	return nil
}

type staticSource string

func (s staticSource) CurrentPath() string { return string(s) }

func TestSyncCreatesThenUpdates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2026-02-26.md")
	if err := os.WriteFile(path, []byte("**[10:00:00] You:** hi\n"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	files := &fakeUploader{}
	s := newSyncer(files, "folder-1")

	if err := s.Sync(path, "2026-02-26"); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}
	if err := s.Sync(path, "2026-02-26"); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}

	if len(files.created) != 1 || files.created[0] != "voice-call-transcripts-2026-02-26" {
		t.Fatalf("expected one created document, got %v", files.created)
	}
	if len(files.updated) != 1 || files.updated[0] != "file-voice-call-transcripts-2026-02-26" {
		t.Fatalf("expected one update of the created document, got %v", files.updated)
	}
	if files.bodies[1] != "**[10:00:00] You:** hi\n" {
		t.Fatalf("unexpected uploaded body %q", files.bodies[1])
	}
}

func TestSyncMissingArchiveIsNoop(t *testing.T) {
	files := &fakeUploader{}
	s := newSyncer(files, "folder-1")

	if err := s.Sync(filepath.Join(t.TempDir(), "none.md"), "2026-02-26"); err != nil {
		t.Fatalf("expected no error for missing archive, got %v", err)
	}
	if len(files.created) != 0 {
		t.Fatal("expected nothing uploaded")
	}
}

func TestSyncCreateFailureRetriesCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2026-02-26.md")
	_ = os.WriteFile(path, []byte("line\n"), 0o644)

	files := &fakeUploader{createErr: errors.New("quota")}
	s := newSyncer(files, "folder-1")

	if err := s.Sync(path, "2026-02-26"); err == nil {
		t.Fatal("expected create error")
	}

	files.createErr = nil
	if err := s.Sync(path, "2026-02-26"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(files.created) != 1 || len(files.updated) != 0 {
		t.Fatalf("expected a fresh create after failure, got created=%v updated=%v", files.created, files.updated)
	}
}

func TestRunSyncsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2026-02-26.md")
	_ = os.WriteFile(path, []byte("line\n"), 0o644)

	files := &fakeUploader{}
	s := newSyncer(files, "folder-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Hour, staticSource(path))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	files.mu.Lock()
	defer files.mu.Unlock()
	if len(files.created) != 1 || files.created[0] != "voice-call-transcripts-2026-02-26" {
		t.Fatalf("expected final sync of the day's archive, got %v", files.created)
	}
}
