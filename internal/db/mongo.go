package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const countersCollection = "counters"

// ConnectMongo connects to MongoDB. An empty uri falls back to MONGO_URI and
// then to a local mongod.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		uri = os.Getenv("MONGO_URI")
	}
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	// Ping to verify connection
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// MongoBackend keeps each logical collection in a MongoDB collection of the
// same name, keyed by the integer id in _id. Ids come from the counters
// collection.
type MongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
	logger *log.Entry
}

// NewMongoBackend uses database dbName of an already connected client.
func NewMongoBackend(client *mongo.Client, dbName string) *MongoBackend {
	return &MongoBackend{
		client: client,
		db:     client.Database(dbName),
		logger: log.WithFields(log.Fields{"component": "mongo", "database": dbName}),
	}
}

// EnsureIndexes creates a descending index per declared order field.
func (b *MongoBackend) EnsureIndexes(ctx context.Context, collections []Collection) error {
	for _, c := range collections {
		if len(c.Indexes) == 0 {
			continue
		}
		models := make([]mongo.IndexModel, 0, len(c.Indexes))
		for _, field := range c.Indexes {
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: field, Value: -1}}})
		}
		if _, err := b.db.Collection(c.Name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating indexes for %s: %w", c.Name, err)
		}
	}
	return nil
}

// toDocument converts a JSON body into a BSON document keyed by id.
func toDocument(id any, body []byte) (bson.D, error) {
	var fields bson.D
	if err := bson.UnmarshalExtJSON(body, false, &fields); err != nil {
		return nil, fmt.Errorf("converting record to bson: %w", err)
	}
	doc := bson.D{{Key: "_id", Value: id}}
	for _, f := range fields {
		if f.Key != "_id" {
			doc = append(doc, f)
		}
	}
	return doc, nil
}

// fromDocument strips _id and renders the document back to JSON.
func fromDocument(raw bson.Raw) ([]byte, error) {
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	fields := make(bson.D, 0, len(doc))
	for _, f := range doc {
		if f.Key != "_id" {
			fields = append(fields, f)
		}
	}
	return bson.MarshalExtJSON(fields, false, false)
}

func (b *MongoBackend) nextID(ctx context.Context, collection string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := b.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": collection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

func (b *MongoBackend) bumpCounter(ctx context.Context, collection string, id int64) error {
	_, err := b.db.Collection(countersCollection).UpdateOne(ctx,
		bson.M{"_id": collection},
		bson.M{"$max": bson.M{"seq": id}},
		options.Update().SetUpsert(true),
	)
	return err
}

// Insert implements Backend.
func (b *MongoBackend) Insert(ctx context.Context, collection string, id int64, body []byte) (int64, error) {
	var err error
	if id == 0 {
		if id, err = b.nextID(ctx, collection); err != nil {
			return 0, fmt.Errorf("allocating id: %w", err)
		}
	} else if err = b.bumpCounter(ctx, collection, id); err != nil {
		return 0, fmt.Errorf("advancing counter: %w", err)
	}
	doc, err := toDocument(id, body)
	if err != nil {
		return 0, err
	}
	if _, err := b.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, ErrDuplicateID
		}
		return 0, err
	}
	return id, nil
}

// Get implements Backend.
func (b *MongoBackend) Get(ctx context.Context, collection string, id int64) ([]byte, error) {
	raw, err := b.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromDocument(raw)
}

// List implements Backend.
func (b *MongoBackend) List(ctx context.Context, collection, orderBy string) ([]Row, error) {
	sort := bson.D{{Key: "_id", Value: 1}}
	if orderBy != "" {
		sort = bson.D{{Key: orderBy, Value: -1}, {Key: "_id", Value: -1}}
	}
	cursor, err := b.db.Collection(collection).Find(ctx, bson.M{}, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Row
	for cursor.Next(ctx) {
		id, ok := cursor.Current.Lookup("_id").AsInt64OK()
		if !ok {
			return nil, fmt.Errorf("record in %s has a non-integer _id", collection)
		}
		body, err := fromDocument(cursor.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, Row{ID: id, Body: body})
	}
	return out, cursor.Err()
}

// Put implements Backend.
func (b *MongoBackend) Put(ctx context.Context, collection string, id int64, body []byte) (bool, error) {
	doc, err := toDocument(id, body)
	if err != nil {
		return false, err
	}
	res, err := b.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// Delete implements Backend.
func (b *MongoBackend) Delete(ctx context.Context, collection string, id int64) (bool, error) {
	res, err := b.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// DeleteWhere implements Backend.
func (b *MongoBackend) DeleteWhere(ctx context.Context, collection, field string, value int64) (int64, error) {
	res, err := b.db.Collection(collection).DeleteMany(ctx, bson.M{field: value})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Clear implements Backend.
func (b *MongoBackend) Clear(ctx context.Context, collection string) error {
	_, err := b.db.Collection(collection).DeleteMany(ctx, bson.M{})
	return err
}

// Replace loads rows into a staging collection and renames it over the
// target, which MongoDB performs atomically. The staging collection gets the
// target's indexes first since the rename drops the target's own.
func (b *MongoBackend) Replace(ctx context.Context, collection string, rows []Row) error {
	if len(rows) == 0 {
		return b.Clear(ctx, collection)
	}
	staging := collection + "__import"
	stagingColl := b.db.Collection(staging)
	if err := stagingColl.Drop(ctx); err != nil {
		return fmt.Errorf("dropping staging collection: %w", err)
	}
	if err := copyIndexes(ctx, b.db.Collection(collection), stagingColl); err != nil {
		stagingColl.Drop(ctx)
		return fmt.Errorf("preparing staging indexes: %w", err)
	}

	docs := make([]interface{}, 0, len(rows))
	var maxID int64
	for _, r := range rows {
		doc, err := toDocument(r.ID, r.Body)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		maxID = max(maxID, r.ID)
	}
	if _, err := stagingColl.InsertMany(ctx, docs); err != nil {
		stagingColl.Drop(ctx)
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return err
	}

	dbName := b.db.Name()
	cmd := bson.D{
		{Key: "renameCollection", Value: dbName + "." + staging},
		{Key: "to", Value: dbName + "." + collection},
		{Key: "dropTarget", Value: true},
	}
	if err := b.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		stagingColl.Drop(ctx)
		return fmt.Errorf("swapping in imported collection: %w", err)
	}
	return b.bumpCounter(ctx, collection, maxID)
}

// copyIndexes recreates the secondary indexes of from on to.
func copyIndexes(ctx context.Context, from, to *mongo.Collection) error {
	specs, err := from.Indexes().ListSpecifications(ctx)
	if err != nil {
		return err
	}
	indexes := make([]mongo.IndexModel, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "_id_" {
			continue
		}
		var keys bson.D
		if err := bson.Unmarshal(spec.KeysDocument, &keys); err != nil {
			return err
		}
		opts := options.Index().SetName(spec.Name)
		if spec.Unique != nil && *spec.Unique {
			opts.SetUnique(true)
		}
		indexes = append(indexes, mongo.IndexModel{Keys: keys, Options: opts})
	}
	if len(indexes) == 0 {
		return nil
	}
	_, err = to.Indexes().CreateMany(ctx, indexes)
	return err
}

// GetDocument implements Backend.
func (b *MongoBackend) GetDocument(ctx context.Context, collection, key string) ([]byte, error) {
	raw, err := b.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromDocument(raw)
}

// PutDocument implements Backend.
func (b *MongoBackend) PutDocument(ctx context.Context, collection, key string, body []byte) error {
	doc, err := toDocument(key, body)
	if err != nil {
		return err
	}
	_, err = b.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

// ListDocuments implements Backend.
func (b *MongoBackend) ListDocuments(ctx context.Context, collection string) ([]Document, error) {
	cursor, err := b.db.Collection(collection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Document
	for cursor.Next(ctx) {
		key, ok := cursor.Current.Lookup("_id").StringValueOK()
		if !ok {
			continue
		}
		body, err := fromDocument(cursor.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, Document{Key: key, Body: body})
	}
	return out, cursor.Err()
}

// Close disconnects the client.
func (b *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}
