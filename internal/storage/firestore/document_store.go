// Package firestore реализует удалённое хранилище документов поверх Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// pingCollection — служебная коллекция для проверки доступности; документ в ней не создаётся.
const pingCollection = "_health"

// NewClient создаёт клиента Firestore. Файл учётных данных необязателен:
// без него используются Application Default Credentials или FIRESTORE_EMULATOR_HOST.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if f := strings.TrimSpace(credentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient (project=%s): %w", projectID, err)
	}
	return client, nil
}

// DocumentStore — реализация domain.DocumentStore с пополевой семантикой Firestore:
// Merge сливает поля через firestore.MergeAll, Create опирается на AlreadyExists.
type DocumentStore struct {
	client *firestore.Client
}

// NewDocumentStore оборачивает готового клиента.
func NewDocumentStore(client *firestore.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	ref, err := s.doc(collection, id)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, mapError(fmt.Errorf("get %s/%s: %w", collection, id, err))
	}
	return domain.Document(snap.Data()), nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, doc domain.Document, opts domain.SetOptions) error {
	ref, err := s.doc(collection, id)
	if err != nil {
		return err
	}
	data := toData(doc)
	if opts.Merge {
		_, err = ref.Set(ctx, data, firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, data)
	}
	if err != nil {
		return mapError(fmt.Errorf("set %s/%s: %w", collection, id, err))
	}
	return nil
}

func (s *DocumentStore) Add(ctx context.Context, collection string, doc domain.Document) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("firestore document store: client is nil")
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, toData(doc))
	if err != nil {
		return "", mapError(fmt.Errorf("add to %s: %w", collection, err))
	}
	return ref.ID, nil
}

func (s *DocumentStore) Create(ctx context.Context, collection, id string, doc domain.Document) error {
	ref, err := s.doc(collection, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, toData(doc)); err != nil {
		return mapError(fmt.Errorf("create %s/%s: %w", collection, id, err))
	}
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, q domain.Query) ([]domain.Snapshot, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("firestore document store: client is nil")
	}

	query := s.client.Collection(q.Collection).Query
	for _, f := range q.Where {
		query = query.Where(f.Field, "==", f.Value)
	}
	for _, o := range q.OrderBy {
		dir := firestore.Asc
		if o.Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(o.Field, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	it := query.Documents(ctx)
	defer it.Stop()

	var out []domain.Snapshot
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError(fmt.Errorf("query %s: %w", q.Collection, err))
		}
		out = append(out, domain.Snapshot{ID: snap.Ref.ID, Data: domain.Document(snap.Data())})
	}
	return out, nil
}

// Ping читает несуществующий служебный документ: NotFound означает, что бэкенд отвечает.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("firestore document store: client is nil")
	}
	_, err := s.client.Collection(pingCollection).Doc("ping").Get(ctx)
	if err == nil || status.Code(err) == codes.NotFound {
		return nil
	}
	return mapError(fmt.Errorf("ping firestore: %w", err))
}

// Close закрывает клиента.
func (s *DocumentStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *DocumentStore) doc(collection, id string) (*firestore.DocumentRef, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("firestore document store: client is nil")
	}
	id = strings.TrimSpace(id)
	if collection == "" || id == "" {
		return nil, fmt.Errorf("%w: collection and id are required", domain.ErrValidation)
	}
	return s.client.Collection(collection).Doc(id), nil
}

// toData снимает именованный тип: MergeAll принимает только map[string]interface{}.
func toData(doc domain.Document) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	return map[string]any(doc)
}

// mapError переводит gRPC-коды Firestore в ошибки хранилища.
func mapError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %w", domain.ErrDocumentNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %w", domain.ErrDocumentExists, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return err
}

var _ domain.DocumentStore = (*DocumentStore)(nil)
