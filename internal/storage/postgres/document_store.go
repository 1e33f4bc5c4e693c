package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/document"
)

type documentStore struct {
	store *Store
}

// NewDocumentStore создаёт удалённое хранилище документов поверх таблицы documents.
// Слияние полей выполняется оператором jsonb ||, фильтры равенства: через @>.
func NewDocumentStore(store *Store) domain.DocumentStore {
	return &documentStore{store: store}
}

func (s *documentStore) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var body []byte
	err := s.store.db.QueryRowContext(ctx, `
		SELECT body
		FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, strings.TrimSpace(id)).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, classify(fmt.Errorf("get document %s/%s: %w", collection, id, err))
	}
	return document.Decode(body)
}

func (s *documentStore) Set(ctx context.Context, collection, id string, doc domain.Document, opts domain.SetOptions) error {
	id = strings.TrimSpace(id)
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", domain.ErrValidation)
	}
	body, err := encodeBody(doc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		INSERT INTO documents (collection, id, body, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW(), NOW())
		ON CONFLICT (collection, id) DO UPDATE
		SET body = EXCLUDED.body,
		    updated_at = NOW()
	`
	if opts.Merge {
		query = `
			INSERT INTO documents (collection, id, body, created_at, updated_at)
			VALUES ($1, $2, $3::jsonb, NOW(), NOW())
			ON CONFLICT (collection, id) DO UPDATE
			SET body = documents.body || EXCLUDED.body,
			    updated_at = NOW()
		`
	}

	if _, err := s.store.db.ExecContext(ctx, query, collection, id, body); err != nil {
		return classify(fmt.Errorf("set document %s/%s: %w", collection, id, err))
	}
	return nil
}

func (s *documentStore) Add(ctx context.Context, collection string, doc domain.Document) (string, error) {
	id := uuid.NewString()
	if err := s.Create(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (s *documentStore) Create(ctx context.Context, collection, id string, doc domain.Document) error {
	id = strings.TrimSpace(id)
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", domain.ErrValidation)
	}
	body, err := encodeBody(doc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW(), NOW())
	`, collection, id, body)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDocumentExists
		}
		return classify(fmt.Errorf("create document %s/%s: %w", collection, id, err))
	}
	return nil
}

// Query отбирает документы по фильтрам в SQL, а сортировку и limit применяет после
// декодирования: поля jsonb сравниваются с учётом типа (время, число, строка).
func (s *documentStore) Query(ctx context.Context, q domain.Query) ([]domain.Snapshot, error) {
	filter := make(map[string]any, len(q.Where))
	for _, f := range q.Where {
		filter[f.Field] = f.Value
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode query filter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, body
		FROM documents
		WHERE collection = $1 AND body @> $2::jsonb
	`, q.Collection, string(filterJSON))
	if err != nil {
		return nil, classify(fmt.Errorf("query documents %s: %w", q.Collection, err))
	}
	defer rows.Close()

	snaps := make([]domain.Snapshot, 0)
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := document.Decode(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, id, err)
		}
		snaps = append(snaps, domain.Snapshot{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate documents: %w", err))
	}

	return document.Apply(snaps, q), nil
}

func (s *documentStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func encodeBody(doc domain.Document) (string, error) {
	if doc == nil {
		doc = domain.Document{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

var _ domain.DocumentStore = (*documentStore)(nil)
