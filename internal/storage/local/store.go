// Package local реализует хранилище устройства: синхронное, JSON-сериализованное
// key/value с необязательным зеркалом в файл. Используется в Local-режиме и как
// fallback для отдельных операций при недоступном удалённом бэкенде.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/document"
)

// Store хранит каждый документ как сериализованную JSON-строку.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]map[string]json.RawMessage
}

// Open открывает хранилище. При пустом path данные живут только в памяти процесса,
// иначе загружаются из файла и переписываются в него после каждой записи.
func Open(path string) (*Store, error) {
	s := &Store{
		path: strings.TrimSpace(path),
		data: make(map[string]map[string]json.RawMessage),
	}
	if s.path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read local store %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode local store %s: %w", s.path, err)
	}
	return s, nil
}

// NewInMemory возвращает хранилище без файлового зеркала.
func NewInMemory() *Store {
	s, _ := Open("")
	return s
}

// Get читает документ или возвращает ErrDocumentNotFound.
func (s *Store) Get(_ context.Context, collection, id string) (domain.Document, error) {
	s.mu.Lock()
	raw, ok := s.data[collection][strings.TrimSpace(id)]
	s.mu.Unlock()

	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return document.Decode(raw)
}

// Set сериализует документ; при Merge поля верхнего уровня сливаются с сохранёнными.
func (s *Store) Set(_ context.Context, collection, id string, doc domain.Document, opts domain.SetOptions) error {
	id = strings.TrimSpace(id)
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.data[collection][id]; ok && opts.Merge {
		existing, err := document.Decode(current)
		if err != nil {
			return err
		}
		doc = document.Merge(existing, doc)
	}
	return s.putLocked(collection, id, doc)
}

// Add сохраняет документ под сгенерированным идентификатором.
func (s *Store) Add(ctx context.Context, collection string, doc domain.Document) (string, error) {
	id := uuid.NewString()
	if err := s.Create(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Create сохраняет документ, если ID ещё не занят.
func (s *Store) Create(_ context.Context, collection, id string, doc domain.Document) error {
	id = strings.TrimSpace(id)
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[collection][id]; exists {
		return domain.ErrDocumentExists
	}
	return s.putLocked(collection, id, doc)
}

// Query декодирует документы коллекции и применяет фильтры и сортировку.
func (s *Store) Query(_ context.Context, q domain.Query) ([]domain.Snapshot, error) {
	s.mu.Lock()
	raws := make(map[string]json.RawMessage, len(s.data[q.Collection]))
	for id, raw := range s.data[q.Collection] {
		raws[id] = raw
	}
	s.mu.Unlock()

	snaps := make([]domain.Snapshot, 0, len(raws))
	for id, raw := range raws {
		doc, err := document.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, id, err)
		}
		snaps = append(snaps, domain.Snapshot{ID: id, Data: doc})
	}
	return document.Apply(snaps, q), nil
}

// Ping всегда успешен: хранилище устройства доступно, пока жив процесс.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) putLocked(collection, id string, doc domain.Document) error {
	if doc == nil {
		doc = domain.Document{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	docs, ok := s.data[collection]
	if !ok {
		docs = make(map[string]json.RawMessage)
		s.data[collection] = docs
	}
	previous, had := docs[id]
	docs[id] = raw

	if err := s.flushLocked(); err != nil {
		if had {
			docs[id] = previous
		} else {
			delete(docs, id)
		}
		return err
	}
	return nil
}

// flushLocked атомарно переписывает файл зеркала: запись во временный файл и rename.
func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode local store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create local store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".storefront-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write local store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close local store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace local store: %w", err)
	}
	return nil
}

var _ domain.DocumentStore = (*Store)(nil)
