// Package driver provides the MongoDB implementation of core.Driver.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leandroluk/golem-statichooks/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNoDatabase is returned when neither the schema nor the driver names a
// database.
var ErrNoDatabase = errors.New("mongo driver: database name is empty")

// ErrNoCollection is returned for schemas without a collection name.
var ErrNoCollection = errors.New("mongo driver: collection name is empty")

type MongoDriver struct {
	client          *mongo.Client
	defaultDatabase string
}

var _ core.Driver = (*MongoDriver)(nil)

func NewMongoDriver(ctx context.Context, uri string, defaultDB string) (*MongoDriver, error) {
	opts := mopt.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoDriver{client: client, defaultDatabase: defaultDB}, nil
}

func (driver *MongoDriver) coll(schema *core.SchemaCore) (*mongo.Collection, error) {
	if schema.Collection == "" {
		return nil, ErrNoCollection
	}
	dbName := driver.defaultDatabase
	if schema.Database != "" {
		dbName = schema.Database
	}
	if dbName == "" {
		return nil, ErrNoDatabase
	}
	return driver.client.Database(dbName).Collection(schema.Collection), nil
}

// withSession binds the session of a transaction carried by ctx.
func (driver *MongoDriver) withSession(ctx context.Context) context.Context {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if mt, ok := tx.(*mongoTransaction); ok {
			return mongo.NewSessionContext(ctx, mt.session)
		}
	}
	return ctx
}

func (driver *MongoDriver) Connect(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

func (driver *MongoDriver) Ping(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

func (driver *MongoDriver) Close(ctx context.Context) error {
	return driver.client.Disconnect(ctx)
}

func (driver *MongoDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	session, err := driver.client.StartSession()
	if err != nil {
		return nil, err
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &mongoTransaction{session: session}, nil
}

func (driver *MongoDriver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...core.Document) error {
	if len(documents) == 0 {
		return nil
	}
	collection, err := driver.coll(schema)
	if err != nil {
		return err
	}
	documentList := make([]any, 0, len(documents))
	for _, doc := range documents {
		documentList = append(documentList, bson.M(doc))
	}
	_, err = collection.InsertMany(driver.withSession(ctx), documentList)
	return err
}

func (driver *MongoDriver) find(ctx context.Context, schema *core.SchemaCore, query *core.Where, single bool) ([]core.Document, error) {
	collection, err := driver.coll(schema)
	if err != nil {
		return nil, err
	}
	filter, err := buildFilter(safeCondition(query))
	if err != nil {
		return nil, err
	}
	ctx = driver.withSession(ctx)
	findOpts := mopt.Find()

	if query != nil {
		if len(query.Sort) > 0 {
			findOpts.SetSort(buildSort(query.Sort))
		}
		if query.Offset > 0 {
			findOpts.SetSkip(int64(query.Offset))
		}
		if query.Limit > 0 {
			findOpts.SetLimit(int64(query.Limit))
		}
	}
	if single {
		findOpts.SetLimit(1)
	}

	cursor, err := collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	resultList := []core.Document{}
	for cursor.Next(ctx) {
		var bsonMap bson.M
		if err := cursor.Decode(&bsonMap); err != nil {
			return nil, err
		}
		resultList = append(resultList, decodeRow(bsonMap))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return resultList, nil
}

func (driver *MongoDriver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (core.Document, error) {
	rowList, err := driver.find(ctx, schema, query, true)
	if err != nil || len(rowList) == 0 {
		return nil, err
	}
	return rowList[0], nil
}

func (driver *MongoDriver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) ([]core.Document, error) {
	return driver.find(ctx, schema, query, false)
}

func (driver *MongoDriver) Update(ctx context.Context, schema *core.SchemaCore, condition *core.Condition, changes core.Changes) (int64, error) {
	collection, err := driver.coll(schema)
	if err != nil {
		return 0, err
	}
	filter, err := buildFilter(condition)
	if err != nil {
		return 0, err
	}
	result, err := collection.UpdateMany(driver.withSession(ctx), filter, bson.M{"$set": bson.M(changes)})
	if err != nil {
		return 0, err
	}
	return result.MatchedCount, nil
}

func (driver *MongoDriver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	collection, err := driver.coll(schema)
	if err != nil {
		return 0, err
	}
	filter, err := buildFilter(condition)
	if err != nil {
		return 0, err
	}
	result, err := collection.DeleteMany(driver.withSession(ctx), filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (driver *MongoDriver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	collection, err := driver.coll(schema)
	if err != nil {
		return 0, err
	}
	filter, err := buildFilter(condition)
	if err != nil {
		return 0, err
	}
	return collection.CountDocuments(driver.withSession(ctx), filter)
}

func (driver *MongoDriver) Aggregate(ctx context.Context, schema *core.SchemaCore, pipeline core.Pipeline) ([]core.Document, error) {
	collection, err := driver.coll(schema)
	if err != nil {
		return nil, err
	}
	stageList, err := buildPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	ctx = driver.withSession(ctx)
	cursor, err := collection.Aggregate(ctx, stageList)
	if err != nil {
		return nil, fmt.Errorf("mongo driver: aggregate %s: %w", schema.Collection, err)
	}
	defer cursor.Close(ctx)

	resultList := []core.Document{}
	for cursor.Next(ctx) {
		var bsonMap bson.M
		if err := cursor.Decode(&bsonMap); err != nil {
			return nil, err
		}
		resultList = append(resultList, decodeRow(bsonMap))
	}
	return resultList, cursor.Err()
}

var _ core.Migrator = (*MongoDriver)(nil)

// Migrate creates unique indexes for primary key and unique fields. The
// collection itself is created by the server on first insert.
func (driver *MongoDriver) Migrate(ctx context.Context, schema *core.SchemaCore) error {
	collection, err := driver.coll(schema)
	if err != nil {
		return err
	}
	indexList := buildIndexes(schema)
	if len(indexList) == 0 {
		return nil
	}
	_, err = collection.Indexes().CreateMany(ctx, indexList)
	return err
}

// Drop drops the collection for schema.
func (driver *MongoDriver) Drop(ctx context.Context, schema *core.SchemaCore) error {
	collection, err := driver.coll(schema)
	if err != nil {
		return err
	}
	return collection.Drop(ctx)
}
