package domain

import "context"

// Document — документ хранилища: набор полей верхнего уровня.
type Document map[string]any

// Snapshot — документ вместе с его идентификатором в коллекции.
type Snapshot struct {
	ID   string
	Data Document
}

// SetOptions управляет семантикой записи.
type SetOptions struct {
	// Merge обновляет только переданные поля верхнего уровня, остальные сохраняются.
	Merge bool
}

// Filter — условие равенства поля значению.
type Filter struct {
	Field string
	Value any
}

// OrderBy задаёт сортировку результата запроса.
type OrderBy struct {
	Field string
	Desc  bool
}

// Query описывает выборку из коллекции.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    []OrderBy
	Limit      int
}

// DocumentStore — единый контракт бэкенда хранения документов.
// Реализации: локальное хранилище устройства и удалённые хранилища (memory, postgres, firestore).
type DocumentStore interface {
	// Get возвращает документ или ErrDocumentNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set записывает документ целиком или сливает поля при opts.Merge.
	Set(ctx context.Context, collection, id string, doc Document, opts SetOptions) error
	// Add создаёт документ с идентификатором, сгенерированным хранилищем.
	Add(ctx context.Context, collection string, doc Document) (string, error)
	// Create создаёт документ с заданным ID; если он уже есть: ErrDocumentExists.
	// Это ограничение уникальности уровня хранилища, на нём держится идемпотентность заказов.
	Create(ctx context.Context, collection, id string, doc Document) error
	// Query возвращает документы коллекции, удовлетворяющие фильтрам, в заданном порядке.
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	// Ping проверяет доступность бэкенда.
	Ping(ctx context.Context) error
}
