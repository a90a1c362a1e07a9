package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// Store is the record store: CRUD over named collections of JSON records plus
// keyed singleton documents. A Store owns its backend; there is no package
// level handle, so tests can open as many isolated stores as they need.
type Store struct {
	backend     Backend
	collections map[string]Collection
	documents   map[string]bool
	logger      *log.Entry
}

// NewStore wraps a backend with the default ledger schema.
func NewStore(backend Backend) *Store {
	return NewStoreWithCollections(backend, DefaultCollections(), DefaultDocumentCollections())
}

// NewStoreWithCollections wraps a backend with a custom schema.
func NewStoreWithCollections(backend Backend, collections []Collection, documents []string) *Store {
	s := &Store{
		backend:     backend,
		collections: make(map[string]Collection, len(collections)),
		documents:   make(map[string]bool, len(documents)),
		logger:      log.WithField("component", "store"),
	}
	for _, c := range collections {
		s.collections[c.Name] = c
	}
	for _, d := range documents {
		s.documents[d] = true
	}
	return s
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Collection returns the schema entry for name.
func (s *Store) Collection(name string) (Collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return Collection{}, &NotFoundError{Collection: name}
	}
	return c, nil
}

// Collections returns the names of every numbered collection, sorted.
func (s *Store) Collections() []string {
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create stores rec and returns its id. A zero id is replaced by the next id
// of the collection; the assigned id is written back into rec.
func (s *Store) Create(ctx context.Context, collection string, rec models.Record) (int64, error) {
	if _, err := s.Collection(collection); err != nil {
		return 0, err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return 0, NewValidationError("", fmt.Sprintf("encoding record: %v", err))
	}
	id, err := s.backend.Insert(ctx, collection, rec.GetID(), body)
	if errors.Is(err, ErrDuplicateID) {
		return 0, NewValidationError("id", fmt.Sprintf("id %d already exists in %s", rec.GetID(), collection))
	}
	if err != nil {
		return 0, storageErr("create", collection, err)
	}
	rec.SetID(id)
	s.logger.WithFields(log.Fields{"collection": collection, "id": id}).Debug("Record created")
	return id, nil
}

// Read loads record id into out. A missing record is reported as false with
// a nil error.
func (s *Store) Read(ctx context.Context, collection string, id int64, out models.Record) (bool, error) {
	if _, err := s.Collection(collection); err != nil {
		return false, err
	}
	body, err := s.backend.Get(ctx, collection, id)
	if err != nil {
		return false, storageErr("read", collection, err)
	}
	if body == nil {
		return false, nil
	}
	if err := decodeRow(Row{ID: id, Body: body}, out); err != nil {
		return false, storageErr("read", collection, err)
	}
	return true, nil
}

// Rows lists raw records. orderBy must name a declared index to take effect;
// any other value (including "") yields insertion order.
func (s *Store) Rows(ctx context.Context, collection, orderBy string) ([]Row, error) {
	c, err := s.Collection(collection)
	if err != nil {
		return nil, err
	}
	if !c.HasIndex(orderBy) {
		orderBy = ""
	}
	rows, err := s.backend.List(ctx, collection, orderBy)
	if err != nil {
		return nil, storageErr("list", collection, err)
	}
	return rows, nil
}

// Update replaces rec in full. A zero id inserts instead.
func (s *Store) Update(ctx context.Context, collection string, rec models.Record) error {
	if _, err := s.Collection(collection); err != nil {
		return err
	}
	if rec.GetID() == 0 {
		_, err := s.Create(ctx, collection, rec)
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return NewValidationError("", fmt.Sprintf("encoding record: %v", err))
	}
	existed, err := s.backend.Put(ctx, collection, rec.GetID(), body)
	if err != nil {
		return storageErr("update", collection, err)
	}
	if !existed {
		return &NotFoundError{Collection: collection, ID: rec.GetID()}
	}
	return nil
}

// Delete removes a record and then runs the collection's cascades. Each
// cascade is its own unit of work: if one fails, the primary delete stays
// committed and the error is returned so the caller can reconcile.
func (s *Store) Delete(ctx context.Context, collection string, id int64) error {
	c, err := s.Collection(collection)
	if err != nil {
		return err
	}
	existed, err := s.backend.Delete(ctx, collection, id)
	if err != nil {
		return storageErr("delete", collection, err)
	}
	if !existed {
		return nil
	}
	for _, cascade := range c.Cascades {
		n, err := s.backend.DeleteWhere(ctx, cascade.Collection, cascade.Field, id)
		if err != nil {
			return storageErr("cascade delete", cascade.Collection, err)
		}
		if n > 0 {
			s.logger.WithFields(log.Fields{
				"collection": cascade.Collection,
				"parent":     collection,
				"parent_id":  id,
				"removed":    n,
			}).Info("Cascade removed linked records")
		}
	}
	return nil
}

// Clear removes every record in a collection. Cascades do not run.
func (s *Store) Clear(ctx context.Context, collection string) error {
	if _, err := s.Collection(collection); err != nil {
		return err
	}
	return storageErr("clear", collection, s.backend.Clear(ctx, collection))
}

// Replace clears a collection and reloads it from rows in one unit of work.
// Ids are preserved; a duplicate id rejects the whole collection.
func (s *Store) Replace(ctx context.Context, collection string, rows []Row) error {
	if _, err := s.Collection(collection); err != nil {
		return err
	}
	seen := make(map[int64]bool, len(rows))
	for _, r := range rows {
		if r.ID <= 0 {
			return NewValidationError("id", fmt.Sprintf("%s: record id must be positive, got %d", collection, r.ID))
		}
		if seen[r.ID] {
			return NewValidationError("id", fmt.Sprintf("%s: duplicate id %d", collection, r.ID))
		}
		seen[r.ID] = true
	}
	return storageErr("replace", collection, s.backend.Replace(ctx, collection, rows))
}

// GetDocument decodes the keyed singleton into out, reporting whether it exists.
func (s *Store) GetDocument(ctx context.Context, collection, key string, out any) (bool, error) {
	if !s.documents[collection] {
		return false, &NotFoundError{Collection: collection}
	}
	body, err := s.backend.GetDocument(ctx, collection, key)
	if err != nil {
		return false, storageErr("read document", collection, err)
	}
	if body == nil {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, storageErr("read document", collection, err)
	}
	return true, nil
}

// PutDocument creates or overwrites a keyed singleton.
func (s *Store) PutDocument(ctx context.Context, collection, key string, v any) error {
	if !s.documents[collection] {
		return &NotFoundError{Collection: collection}
	}
	body, err := json.Marshal(v)
	if err != nil {
		return NewValidationError(key, fmt.Sprintf("encoding document: %v", err))
	}
	return storageErr("write document", collection, s.backend.PutDocument(ctx, collection, key, body))
}

// Documents lists every keyed singleton of a document collection.
func (s *Store) Documents(ctx context.Context, collection string) ([]Document, error) {
	if !s.documents[collection] {
		return nil, &NotFoundError{Collection: collection}
	}
	docs, err := s.backend.ListDocuments(ctx, collection)
	if err != nil {
		return nil, storageErr("list documents", collection, err)
	}
	return docs, nil
}

// Decode unmarshals a row into a new record of the collection's type.
func (s *Store) Decode(collection string, row Row) (models.Record, error) {
	c, err := s.Collection(collection)
	if err != nil {
		return nil, err
	}
	rec := c.New()
	if err := decodeRow(row, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeRow(row Row, out models.Record) error {
	if err := json.Unmarshal(row.Body, out); err != nil {
		return fmt.Errorf("decoding record %d: %w", row.ID, err)
	}
	out.SetID(row.ID)
	return nil
}

// List returns every record of a collection decoded as T.
func List[T any, PT interface {
	*T
	models.Record
}](ctx context.Context, s *Store, collection, orderBy string) ([]T, error) {
	rows, err := s.Rows(ctx, collection, orderBy)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := decodeRow(row, PT(&v)); err != nil {
			return nil, storageErr("list", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns record id decoded as T, or nil when absent.
func Get[T any, PT interface {
	*T
	models.Record
}](ctx context.Context, s *Store, collection string, id int64) (*T, error) {
	var v T
	found, err := s.Read(ctx, collection, id, PT(&v))
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}
