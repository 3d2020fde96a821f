package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"SocialSchedulerAPI/models"
)

// allowedMIMETypes maps accepted MIME values (detected via magic numbers,
// never trusted from the request) to the media type stored on the record.
var allowedMIMETypes = map[string]models.MediaType{
	"image/jpeg": models.MediaImage,
	"image/png":  models.MediaImage,
	"image/gif":  models.MediaImage,
	"image/webp": models.MediaImage,
	"video/mp4":  models.MediaVideo,
}

type StorageService struct {
	uploadDir string
	baseURL   string
}

func NewStorageService(uploadDir, baseURL string) (*StorageService, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create upload directory: %w", err)
	}
	return &StorageService{
		uploadDir: uploadDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}, nil
}

// SaveUpload sniffs the file's real type, writes it to disk under a fresh
// id, and returns the media record to persist.
func (s *StorageService) SaveUpload(file multipart.File, header *multipart.FileHeader, userID string) (*models.Media, error) {
	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("unable to read file header: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("unable to reset file reader: %w", err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return nil, fmt.Errorf("file type detection failed: %w", err)
	}

	mediaType, ok := allowedMIMETypes[kind.MIME.Value]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q", kind.MIME.Value)
	}

	id := uuid.New().String()
	filename := id + "." + kind.Extension
	path := filepath.Join(s.uploadDir, filename)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("unable to save file: %w", err)
	}

	return &models.Media{
		ID:        id,
		UserID:    userID,
		Filename:  header.Filename,
		Path:      path,
		URL:       s.baseURL + "/uploads/" + filename,
		Type:      mediaType,
		Size:      size,
		MimeType:  kind.MIME.Value,
		CreatedAt: time.Now(),
	}, nil
}

// Remove deletes the stored file. A missing file is not an error; the
// database row is what matters.
func (s *StorageService) Remove(media *models.Media) error {
	if err := os.Remove(media.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
