// Package memory provides an in-process implementation of core.Driver.
//
// Documents live in maps guarded by a single RWMutex. Conditions and
// aggregation pipelines are evaluated with document-store semantics (a $ne
// filter matches missing fields), which makes the driver a faithful stand-in
// for MongoDB in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/leandroluk/golem-statichooks/core"
)

// ErrDuplicateKey is returned by Insert when a primary key or unique field
// value already exists in the collection.
var ErrDuplicateKey = errors.New("memory: duplicate key")

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory: driver closed")

// Driver is an in-memory core.Driver.
type Driver struct {
	mutex          sync.RWMutex
	collectionList map[string][]core.Document
	faultList      map[string]error
	closed         bool
}

var _ core.Driver = (*Driver)(nil)

// New creates an empty in-memory driver.
func New() *Driver {
	return &Driver{
		collectionList: make(map[string][]core.Document),
		faultList:      make(map[string]error),
	}
}

// InjectFault makes the named method ("Insert", "FindOne", "FindMany",
// "Update", "Delete", "Count", "Aggregate") fail with err. A nil err clears
// the fault.
func (driver *Driver) InjectFault(method string, err error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err == nil {
		delete(driver.faultList, method)
		return
	}
	driver.faultList[method] = err
}

func collectionKey(schema *core.SchemaCore) string {
	return schema.Database + "/" + schema.Collection
}

// check must be called with the mutex held.
func (driver *Driver) check(method string) error {
	if driver.closed {
		return ErrClosed
	}
	return driver.faultList[method]
}

func (driver *Driver) Connect(ctx context.Context) error {
	return driver.Ping(ctx)
}

func (driver *Driver) Ping(ctx context.Context) error {
	driver.mutex.RLock()
	defer driver.mutex.RUnlock()
	if driver.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (driver *Driver) Close(ctx context.Context) error {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	driver.closed = true
	return nil
}

// Transaction snapshots every collection; Rollback restores the snapshot.
// Writes made by other goroutines while the transaction is open are lost on
// rollback.
func (driver *Driver) Transaction(ctx context.Context) (core.Transaction, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if driver.closed {
		return nil, ErrClosed
	}
	return &memoryTransaction{driver: driver, snapshot: driver.snapshotLocked()}, nil
}

func (driver *Driver) snapshotLocked() map[string][]core.Document {
	snapshot := make(map[string][]core.Document, len(driver.collectionList))
	for key, documentList := range driver.collectionList {
		snapshot[key] = cloneList(documentList)
	}
	return snapshot
}

func cloneList(documentList []core.Document) []core.Document {
	out := make([]core.Document, 0, len(documentList))
	for _, doc := range documentList {
		out = append(out, maps.Clone(doc))
	}
	return out
}

func (driver *Driver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...core.Document) error {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.check("Insert"); err != nil {
		return err
	}

	key := collectionKey(schema)
	existing := driver.collectionList[key]
	for _, doc := range documents {
		for _, field := range schema.Fields {
			if !field.IsPrimaryKey && !field.IsUnique {
				continue
			}
			value := doc[field.DatabaseColumnName]
			for _, other := range existing {
				if equal(other[field.DatabaseColumnName], value) {
					return fmt.Errorf("%w: %s.%s = %v", ErrDuplicateKey, schema.Collection, field.DatabaseColumnName, value)
				}
			}
		}
		existing = append(existing, maps.Clone(doc))
	}
	driver.collectionList[key] = existing
	return nil
}

func (driver *Driver) find(schema *core.SchemaCore, query *core.Where) ([]core.Document, error) {
	documentList, err := filter(driver.collectionList[collectionKey(schema)], safeCondition(query))
	if err != nil {
		return nil, err
	}
	documentList = cloneList(documentList)
	if query != nil {
		sortDocuments(documentList, query.Sort)
		documentList = page(documentList, query.Offset, query.Limit)
	}
	return documentList, nil
}

func (driver *Driver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (core.Document, error) {
	driver.mutex.RLock()
	defer driver.mutex.RUnlock()
	if err := driver.check("FindOne"); err != nil {
		return nil, err
	}
	documentList, err := driver.find(schema, query)
	if err != nil || len(documentList) == 0 {
		return nil, err
	}
	return documentList[0], nil
}

func (driver *Driver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) ([]core.Document, error) {
	driver.mutex.RLock()
	defer driver.mutex.RUnlock()
	if err := driver.check("FindMany"); err != nil {
		return nil, err
	}
	return driver.find(schema, query)
}

func (driver *Driver) Update(ctx context.Context, schema *core.SchemaCore, condition *core.Condition, changes core.Changes) (int64, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.check("Update"); err != nil {
		return 0, err
	}
	var modified int64
	for _, doc := range driver.collectionList[collectionKey(schema)] {
		ok, err := Matches(doc, condition)
		if err != nil {
			return modified, err
		}
		if !ok {
			continue
		}
		for column, value := range changes {
			doc[column] = value
		}
		modified++
	}
	return modified, nil
}

func (driver *Driver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if err := driver.check("Delete"); err != nil {
		return 0, err
	}
	key := collectionKey(schema)
	kept := driver.collectionList[key][:0]
	var deleted int64
	for _, doc := range driver.collectionList[key] {
		ok, err := Matches(doc, condition)
		if err != nil {
			return 0, err
		}
		if ok {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	driver.collectionList[key] = kept
	return deleted, nil
}

func (driver *Driver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	driver.mutex.RLock()
	defer driver.mutex.RUnlock()
	if err := driver.check("Count"); err != nil {
		return 0, err
	}
	documentList, err := filter(driver.collectionList[collectionKey(schema)], condition)
	return int64(len(documentList)), err
}

func (driver *Driver) Aggregate(ctx context.Context, schema *core.SchemaCore, pipeline core.Pipeline) ([]core.Document, error) {
	driver.mutex.RLock()
	defer driver.mutex.RUnlock()
	if err := driver.check("Aggregate"); err != nil {
		return nil, err
	}
	return runPipeline(cloneList(driver.collectionList[collectionKey(schema)]), pipeline)
}

func safeCondition(query *core.Where) *core.Condition {
	if query == nil {
		return nil
	}
	return query.Condition
}

var _ core.Migrator = (*Driver)(nil)

// Migrate registers an empty collection for schema.
func (driver *Driver) Migrate(ctx context.Context, schema *core.SchemaCore) error {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if driver.closed {
		return ErrClosed
	}
	key := collectionKey(schema)
	if _, ok := driver.collectionList[key]; !ok {
		driver.collectionList[key] = []core.Document{}
	}
	return nil
}

// Drop removes the collection for schema.
func (driver *Driver) Drop(ctx context.Context, schema *core.SchemaCore) error {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if driver.closed {
		return ErrClosed
	}
	delete(driver.collectionList, collectionKey(schema))
	return nil
}

// Len returns the number of documents stored for schema.
func (driver *Driver) Len(schema *core.SchemaCore) int {
	driver.mutex.RLock()
	defer driver.mutex.RUnlock()
	return len(driver.collectionList[collectionKey(schema)])
}
