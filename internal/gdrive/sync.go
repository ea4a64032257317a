package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// uploader is the part of the Drive API the syncer needs.
type uploader interface {
	Create(name, folderID string, media io.Reader) (string, error)
	Update(fileID string, media io.Reader) error
}

// ArchiveSource reports the transcript file for the current day.
type ArchiveSource interface {
	CurrentPath() string
}

// Syncer mirrors each daily transcript archive into one Drive document:
// created on the first sync of the day, updated in place afterwards.
type Syncer struct {
	files    uploader
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewSyncer(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return newSyncer(driveFiles{svc: svc}, folderID), nil
}

func newSyncer(files uploader, folderID string) *Syncer {
	return &Syncer{
		files:    files,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}
}

// Sync uploads localPath as the document for date. A missing file means no
// call has been archived that day yet and is not an error.
func (s *Syncer) Sync(localPath, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := s.fileIDs[date]; ok {
		if err := s.files.Update(fileID, f); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	id, err := s.files.Create(fmt.Sprintf("voice-call-transcripts-%s", date), s.folderID, f)
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.fileIDs[date] = id
	return nil
}

// Run syncs the current archive every interval until ctx is cancelled, and
// once more on the way out so the last calls of the day are not lost.
func (s *Syncer) Run(ctx context.Context, interval time.Duration, src ArchiveSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.syncCurrent(src)
			return
		case <-ticker.C:
			s.syncCurrent(src)
		}
	}
}

func (s *Syncer) syncCurrent(src ArchiveSource) {
	path := src.CurrentPath()
	date := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := s.Sync(path, date); err != nil {
		slog.Warn("gdrive: sync failed", "path", path, "error", err)
	}
}

type driveFiles struct {
	svc *drive.Service
}

func (d driveFiles) Create(name, folderID string, media io.Reader) (string, error) {
	doc, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{folderID},
	}).Media(media).Do()
	if err != nil {
		return "", err
	}
	return doc.Id, nil
}

func (d driveFiles) Update(fileID string, media io.Reader) error {
	_, err := d.svc.Files.Update(fileID, &drive.File{}).Media(media).Do()
	return err
}
