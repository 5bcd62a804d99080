package objectstore

import (
	"context"
	"sync"
)

// MemoryStore — in-memory реализация Store для тестов.
// Фиксирует записанные объекты вместе с метаданными.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]StoredObject
	// InitBase — префикс для ResumableInitURL (например, URL httptest-сервера)
	InitBase string
}

// StoredObject — объект, записанный в MemoryStore.
type StoredObject struct {
	Data         []byte
	ContentType  string
	CacheControl string
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]StoredObject),
		InitBase: "http://store.test",
	}
}

// Put кладёт объект напрямую (подготовка тестовых данных).
func (m *MemoryStore) Put(objectPath string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectPath] = StoredObject{Data: data, ContentType: contentType}
}

// Get возвращает объект и флаг его наличия.
func (m *MemoryStore) Get(objectPath string) (StoredObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectPath]
	return obj, ok
}

// Len возвращает количество объектов в хранилище.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// ResumableInitURL возвращает детерминированный URL инициации.
func (m *MemoryStore) ResumableInitURL(objectPath string) string {
	return m.InitBase + "/" + objectPath
}

// Download возвращает копию объекта или ErrObjectNotFound.
func (m *MemoryStore) Download(_ context.Context, objectPath string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[objectPath]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), obj.Data...), nil
}

// Upload записывает объект вместе с метаданными.
func (m *MemoryStore) Upload(_ context.Context, objectPath string, data []byte, opts UploadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[objectPath] = StoredObject{
		Data:         append([]byte(nil), data...),
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	}
	return nil
}
