package db

import (
	"context"

	"github.com/ukydev/vehicle-ledger/internal/models"
)

// Row is a stored record body together with its store-assigned id. The id
// column is authoritative; any "id" inside Body is overwritten on read.
type Row struct {
	ID   int64
	Body []byte
}

// Document is a keyed singleton body.
type Document struct {
	Key  string
	Body []byte
}

// Backend is the persistence engine behind a Store. Every method is a single
// unit of work: it either fully applies or leaves the collection unchanged.
type Backend interface {
	// Insert stores body under id, allocating the next id when id is 0.
	// It returns ErrDuplicateID when an explicit id is already present.
	Insert(ctx context.Context, collection string, id int64, body []byte) (int64, error)
	// Get returns nil, nil when the record is absent.
	Get(ctx context.Context, collection string, id int64) ([]byte, error)
	// List returns insertion order when orderBy is empty, otherwise the
	// records ordered by that body field descending.
	List(ctx context.Context, collection string, orderBy string) ([]Row, error)
	// Put replaces the body stored under id, reporting whether it existed.
	Put(ctx context.Context, collection string, id int64, body []byte) (bool, error)
	Delete(ctx context.Context, collection string, id int64) (bool, error)
	// DeleteWhere removes every record whose body field equals value.
	DeleteWhere(ctx context.Context, collection, field string, value int64) (int64, error)
	Clear(ctx context.Context, collection string) error
	// Replace atomically clears the collection and inserts rows with their ids.
	Replace(ctx context.Context, collection string, rows []Row) error

	GetDocument(ctx context.Context, collection, key string) ([]byte, error)
	PutDocument(ctx context.Context, collection, key string, body []byte) error
	ListDocuments(ctx context.Context, collection string) ([]Document, error)

	Close() error
}

// Cascade removes records of another collection that point at a deleted record.
type Cascade struct {
	Collection string
	Field      string
}

// Collection describes a numbered collection known to the store.
type Collection struct {
	Name    string
	Indexes []string
	// New returns an empty record of the collection's type.
	New      func() models.Record
	Cascades []Cascade
}

// HasIndex reports whether field is declared as an index of the collection.
func (c Collection) HasIndex(field string) bool {
	for _, idx := range c.Indexes {
		if idx == field {
			return true
		}
	}
	return false
}

// DefaultCollections is the schema of the vehicle ledger.
func DefaultCollections() []Collection {
	return []Collection{
		{
			Name:    models.CollectionSavings,
			Indexes: []string{"date", "createdAt"},
			New:     func() models.Record { return &models.SavingsEntry{} },
		},
		{
			Name:    models.CollectionCarSavings,
			Indexes: []string{"date", "createdAt"},
			New:     func() models.Record { return &models.SavingsEntry{} },
		},
		{
			Name:    models.CollectionFuel,
			Indexes: []string{"date", "odometer"},
			New:     func() models.Record { return &models.FuelLog{} },
		},
		{
			Name:    models.CollectionMaintenance,
			Indexes: []string{"date", "odometer"},
			New:     func() models.Record { return &models.MaintenanceRecord{} },
			Cascades: []Cascade{
				{Collection: models.CollectionExpenses, Field: "linkedMaintenanceId"},
			},
		},
		{
			Name:    models.CollectionParts,
			Indexes: []string{"sku", "name"},
			New:     func() models.Record { return &models.Part{} },
		},
		{
			Name:    models.CollectionSuppliers,
			Indexes: []string{"name", "rating"},
			New:     func() models.Record { return &models.Supplier{} },
		},
		{
			Name:    models.CollectionExpenses,
			Indexes: []string{"date", "linkedMaintenanceId"},
			New:     func() models.Record { return &models.Expense{} },
		},
	}
}

// DefaultDocumentCollections lists the keyed singleton collections.
func DefaultDocumentCollections() []string {
	return []string{models.DocumentsProfile, models.DocumentsSettings, models.DocumentsTotals}
}
