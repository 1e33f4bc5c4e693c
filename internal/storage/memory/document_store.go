package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/document"
)

// DocumentStore — in-memory реализация удалённого хранилища документов для локальной
// разработки и тестов. Хранит документы в JSON-нормализованном виде, как postgres.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]domain.Document
	unavailable atomic.Bool
}

// NewDocumentStore создаёт пустое хранилище.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{collections: make(map[string]map[string]domain.Document)}
}

// SetUnavailable имитирует недоступность бэкенда: все операции возвращают ErrBackendUnavailable.
func (s *DocumentStore) SetUnavailable(v bool) {
	s.unavailable.Store(v)
}

// Get возвращает копию документа или ErrDocumentNotFound.
func (s *DocumentStore) Get(_ context.Context, collection, id string) (domain.Document, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][strings.TrimSpace(id)]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return cloneDocument(doc), nil
}

// Set записывает документ целиком или сливает поля верхнего уровня.
func (s *DocumentStore) Set(_ context.Context, collection, id string, doc domain.Document, opts domain.SetOptions) error {
	if err := s.check(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", domain.ErrValidation)
	}
	normalized, err := document.Normalize(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collectionLocked(collection)
	if current, ok := docs[id]; ok && opts.Merge {
		normalized = document.Merge(current, normalized)
	}
	docs[id] = normalized
	return nil
}

// Add сохраняет документ под сгенерированным идентификатором.
func (s *DocumentStore) Add(ctx context.Context, collection string, doc domain.Document) (string, error) {
	id := uuid.NewString()
	if err := s.Create(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Create сохраняет документ, только если ID ещё не занят.
func (s *DocumentStore) Create(_ context.Context, collection, id string, doc domain.Document) error {
	if err := s.check(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", domain.ErrValidation)
	}
	normalized, err := document.Normalize(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collectionLocked(collection)
	if _, exists := docs[id]; exists {
		return domain.ErrDocumentExists
	}
	docs[id] = normalized
	return nil
}

// Query возвращает документы коллекции по фильтрам равенства в заданном порядке.
func (s *DocumentStore) Query(_ context.Context, q domain.Query) ([]domain.Snapshot, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	snaps := make([]domain.Snapshot, 0, len(s.collections[q.Collection]))
	for id, doc := range s.collections[q.Collection] {
		snaps = append(snaps, domain.Snapshot{ID: id, Data: cloneDocument(doc)})
	}
	s.mu.RUnlock()

	return document.Apply(snaps, q), nil
}

// Ping сообщает о доступности хранилища.
func (s *DocumentStore) Ping(context.Context) error {
	return s.check()
}

// Count возвращает количество документов в коллекции (используется в тестах).
func (s *DocumentStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *DocumentStore) collectionLocked(collection string) map[string]domain.Document {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]domain.Document)
		s.collections[collection] = docs
	}
	return docs
}

// cloneDocument делает глубокую копию: вложенные списки позиций не должны делиться с вызывающим.
func cloneDocument(doc domain.Document) domain.Document {
	out, err := document.Normalize(doc)
	if err != nil {
		return document.Merge(nil, doc)
	}
	return out
}

func (s *DocumentStore) check() error {
	if s.unavailable.Load() {
		return domain.ErrBackendUnavailable
	}
	return nil
}

var _ domain.DocumentStore = (*DocumentStore)(nil)
