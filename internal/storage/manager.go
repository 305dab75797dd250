// Package storage keeps uploaded AIS files on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

var (
	// ErrFileNotFound is returned for unknown file ids.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileType is returned when an upload has an extension that is not allowed.
	ErrFileType = errors.New("file type not allowed")
	// ErrInvalidUpload is returned for a malformed upload id or chunk index.
	ErrInvalidUpload = errors.New("invalid chunked upload")
	// ErrIncompleteUpload is returned when assembling an upload with chunks missing.
	ErrIncompleteUpload = errors.New("chunked upload incomplete")
)

// Store defines the interface for file storage.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Rename(id string, newName string) (*models.FileInfo, error)
	SetStatus(id string, status string) error
	GetFilePath(id string) (string, error)
	SaveChunk(uploadID string, chunkIndex int, r io.Reader) error
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
}

// LocalStore implements Store using the local filesystem. File contents live
// under uploadDir/<id>; metadata is kept in memory.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	allowed   []string
	files     map[string]*models.FileInfo
	logger    *zap.Logger
}

// NewLocalStore creates a new LocalStore. allowed lists the accepted file
// extensions; an empty list accepts every name. A trailing ".gz" is ignored
// when checking the extension.
func NewLocalStore(uploadDir string, allowed []string, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	norm := make([]string, 0, len(allowed))
	for _, ext := range allowed {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		norm = append(norm, ext)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		allowed:   norm,
		files:     make(map[string]*models.FileInfo),
		logger:    logger.Named("files"),
	}, nil
}

// CheckName reports whether name has an allowed extension.
func (s *LocalStore) CheckName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrFileType)
	}
	if len(s.allowed) == 0 {
		return nil
	}
	lower := strings.TrimSuffix(strings.ToLower(name), ".gz")
	for _, ext := range s.allowed {
		if strings.HasSuffix(lower, ext) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrFileType, name)
}

// Save saves a file to the local filesystem.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	if err := s.CheckName(name); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := s.register(id, name, size)
	s.logger.Info("file saved", zap.String("id", id), zap.String("name", name), zap.Int64("size", size))
	return info, nil
}

func (s *LocalStore) register(id, name string, size int64) *models.FileInfo {
	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		UploadedAt: time.Now(),
		Status:     models.FileStatusUploaded,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info
	return info
}

// Get retrieves file metadata by ID. The result is a copy.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	cp := *info
	return &cp, nil
}

// List returns the most recent files, newest first.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		cp := *info
		list = append(list, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Rename updates the display name of a file.
func (s *LocalStore) Rename(id string, newName string) (*models.FileInfo, error) {
	if err := s.CheckName(newName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	info.Name = newName
	cp := *info
	return &cp, nil
}

// SetStatus records the ingest state of a file.
func (s *LocalStore) SetStatus(id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	info.Status = status
	return nil
}

// GetFilePath returns the path to a file's contents.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	return filepath.Join(s.uploadDir, id), nil
}

func (s *LocalStore) chunkDir(uploadID string) (string, error) {
	if uploadID == "" || strings.ContainsAny(uploadID, `/\`) || uploadID == "." || uploadID == ".." {
		return "", fmt.Errorf("%w: upload id %q", ErrInvalidUpload, uploadID)
	}
	return filepath.Join(s.uploadDir, "chunks", uploadID), nil
}

// SaveChunk saves a single chunk to a temporary location.
func (s *LocalStore) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	dir, err := s.chunkDir(uploadID)
	if err != nil {
		return err
	}
	if chunkIndex < 0 {
		return fmt.Errorf("%w: chunk index %d", ErrInvalidUpload, chunkIndex)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("chunk_%d", chunkIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	return nil
}

// CompleteChunkedUpload assembles all chunks into a final file.
func (s *LocalStore) CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	if err := s.CheckName(name); err != nil {
		return nil, err
	}
	dir, err := s.chunkDir(uploadID)
	if err != nil {
		return nil, err
	}

	if totalChunks < 1 {
		return nil, fmt.Errorf("%w: total chunks %d", ErrInvalidUpload, totalChunks)
	}
	for i := 0; i < totalChunks; i++ {
		if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf("chunk_%d", i))); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: chunk %d of %d missing", ErrIncompleteUpload, i, totalChunks)
		}
	}

	id := uuid.New().String()
	finalPath := filepath.Join(s.uploadDir, id)

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("creating final file: %w", err)
	}
	defer out.Close()

	var totalSize int64
	for i := 0; i < totalChunks; i++ {
		in, err := os.Open(filepath.Join(dir, fmt.Sprintf("chunk_%d", i)))
		if err != nil {
			os.Remove(finalPath)
			return nil, fmt.Errorf("opening chunk %d: %w", i, err)
		}

		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			os.Remove(finalPath)
			return nil, fmt.Errorf("copying chunk %d: %w", i, err)
		}
		totalSize += n
	}

	os.RemoveAll(dir)

	info := s.register(id, name, totalSize)
	s.logger.Info("chunked upload assembled",
		zap.String("id", id),
		zap.String("name", name),
		zap.Int("chunks", totalChunks),
		zap.Int64("size", totalSize))
	return info, nil
}
