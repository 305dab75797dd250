// mock_storage.go - In-memory file storage for handler tests
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/maritimeviz/maritimeviz/internal/storage"
)

// MockStorage implements storage.Store. Metadata lives in memory and file
// contents are written to a temp directory so that ingest can read them.
// Setting SaveErr or DeleteErr makes the matching calls fail.
type MockStorage struct {
	SaveErr   error
	DeleteErr error

	mu      sync.RWMutex
	dir     string
	files   map[string]*models.FileInfo
	chunks  map[string]map[int][]byte // uploadID -> chunkIndex -> data
	counter int
}

// NewMockStorage creates a mock that writes file contents under dir.
func NewMockStorage(dir string) *MockStorage {
	return &MockStorage{
		dir:    dir,
		files:  make(map[string]*models.FileInfo),
		chunks: make(map[string]map[int][]byte),
	}
}

var _ storage.Store = (*MockStorage)(nil)

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.saveBytes(name, data)
}

func (m *MockStorage) saveBytes(name string, data []byte) (*models.FileInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	m.mu.Lock()
	m.counter++
	id := fmt.Sprintf("test-id-%d", m.counter)
	m.mu.Unlock()
	return m.AddFile(id, name, data), nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrFileNotFound, id)
	}
	cp := *file
	return &cp, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	files := make([]*models.FileInfo, 0, len(m.files))
	for _, file := range m.files {
		cp := *file
		files = append(files, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool { return files[i].ID > files[j].ID })
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrFileNotFound, id)
	}
	delete(m.files, id)
	os.Remove(filepath.Join(m.dir, id))
	return nil
}

func (m *MockStorage) Rename(id string, newName string) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrFileNotFound, id)
	}
	file.Name = newName
	cp := *file
	return &cp, nil
}

func (m *MockStorage) SetStatus(id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrFileNotFound, id)
	}
	file.Status = status
	return nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrFileNotFound, id)
	}
	return filepath.Join(m.dir, id), nil
}

func (m *MockStorage) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if uploadID == "" || chunkIndex < 0 {
		return fmt.Errorf("%w: %q/%d", storage.ErrInvalidUpload, uploadID, chunkIndex)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chunks[uploadID] == nil {
		m.chunks[uploadID] = make(map[int][]byte)
	}
	m.chunks[uploadID][chunkIndex] = data
	return nil
}

func (m *MockStorage) CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	m.mu.Lock()
	uploadChunks, ok := m.chunks[uploadID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: upload %s not found", storage.ErrIncompleteUpload, uploadID)
	}

	var data bytes.Buffer
	for i := 0; i < totalChunks; i++ {
		chunk, ok := uploadChunks[i]
		if !ok {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: missing chunk %d", storage.ErrIncompleteUpload, i)
		}
		data.Write(chunk)
	}
	delete(m.chunks, uploadID)
	m.mu.Unlock()

	return m.saveBytes(name, data.Bytes())
}

// AddFile stores a file under a fixed id.
func (m *MockStorage) AddFile(id string, name string, data []byte) *models.FileInfo {
	if err := os.WriteFile(filepath.Join(m.dir, id), data, 0644); err != nil {
		panic(fmt.Sprintf("failed to write test file: %v", err))
	}

	file := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
		Status:     models.FileStatusUploaded,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = file
	cp := *file
	return &cp
}

// FileCount returns the number of stored files.
func (m *MockStorage) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
