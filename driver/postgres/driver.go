// Package postgres provides the PostgreSQL implementation of core.Driver.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leandroluk/golem-statichooks/core"
)

type PostgresDriver struct {
	pool *pgxpool.Pool
}

var _ core.Driver = (*PostgresDriver)(nil)

func NewPostgresDriver(ctx context.Context, connString string) (*PostgresDriver, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresDriver{pool: pool}, nil
}

func (driver *PostgresDriver) tx(ctx context.Context) pgx.Tx {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*postgresTransaction); ok {
			return pgTx.transaction
		}
	}
	return nil
}

func (driver *PostgresDriver) exec(ctx context.Context, sqlQuery string, args ...any) (pgconn.CommandTag, error) {
	if tx := driver.tx(ctx); tx != nil {
		return tx.Exec(ctx, sqlQuery, args...)
	}
	return driver.pool.Exec(ctx, sqlQuery, args...)
}

func (driver *PostgresDriver) query(ctx context.Context, sqlQuery string, args ...any) ([]core.Document, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if tx := driver.tx(ctx); tx != nil {
		rows, err = tx.Query(ctx, sqlQuery, args...)
	} else {
		rows, err = driver.pool.Query(ctx, sqlQuery, args...)
	}
	if err != nil {
		return nil, err
	}
	rowList, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	documentList := make([]core.Document, 0, len(rowList))
	for _, row := range rowList {
		documentList = append(documentList, core.Document(row))
	}
	return documentList, nil
}

func (driver *PostgresDriver) queryRow(ctx context.Context, sqlQuery string, args ...any) pgx.Row {
	if tx := driver.tx(ctx); tx != nil {
		return tx.QueryRow(ctx, sqlQuery, args...)
	}
	return driver.pool.QueryRow(ctx, sqlQuery, args...)
}

func (driver *PostgresDriver) Connect(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

func (driver *PostgresDriver) Ping(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

func (driver *PostgresDriver) Close(ctx context.Context) error {
	driver.pool.Close()
	return nil
}

func (driver *PostgresDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	tx, err := driver.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &postgresTransaction{transaction: tx}, nil
}

func (driver *PostgresDriver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...core.Document) error {
	for _, doc := range documents {
		valueList, placeholderList := core.DocumentValues(schema, doc)
		sqlQuery := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			formatTable(schema), columnList(schema), strings.Join(placeholderList, ", "))
		if _, err := driver.exec(ctx, sqlQuery, valueList...); err != nil {
			return err
		}
	}
	return nil
}

func (driver *PostgresDriver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (core.Document, error) {
	sqlQuery, argList, err := buildSelect(schema, query, true)
	if err != nil {
		return nil, err
	}
	rowList, err := driver.query(ctx, sqlQuery, argList...)
	if err != nil || len(rowList) == 0 {
		return nil, err
	}
	return rowList[0], nil
}

func (driver *PostgresDriver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) ([]core.Document, error) {
	sqlQuery, argList, err := buildSelect(schema, query, false)
	if err != nil {
		return nil, err
	}
	return driver.query(ctx, sqlQuery, argList...)
}

func (driver *PostgresDriver) Update(ctx context.Context, schema *core.SchemaCore, condition *core.Condition, changes core.Changes) (int64, error) {
	sqlQuery, argList, err := buildUpdate(schema, condition, changes)
	if err != nil {
		return 0, err
	}
	tag, err := driver.exec(ctx, sqlQuery, argList...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (driver *PostgresDriver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	argList := []any{}
	whereClause, err := buildCondition(condition, &argList)
	if err != nil {
		return 0, err
	}
	sqlQuery := fmt.Sprintf("DELETE FROM %s WHERE %s", formatTable(schema), whereClause)
	tag, err := driver.exec(ctx, sqlQuery, argList...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (driver *PostgresDriver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	argList := []any{}
	whereClause, err := buildCondition(condition, &argList)
	if err != nil {
		return 0, err
	}
	sqlQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", formatTable(schema), whereClause)

	var count int64
	if err := driver.queryRow(ctx, sqlQuery, argList...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (driver *PostgresDriver) Aggregate(ctx context.Context, schema *core.SchemaCore, pipeline core.Pipeline) ([]core.Document, error) {
	sqlQuery, argList, err := buildAggregate(schema, pipeline)
	if err != nil {
		return nil, err
	}
	return driver.query(ctx, sqlQuery, argList...)
}

var _ core.Migrator = (*PostgresDriver)(nil)

func (driver *PostgresDriver) Migrate(ctx context.Context, schema *core.SchemaCore) error {
	_, err := driver.exec(ctx, buildCreateTable(schema))
	return err
}

func (driver *PostgresDriver) Drop(ctx context.Context, schema *core.SchemaCore) error {
	_, err := driver.exec(ctx, "DROP TABLE IF EXISTS "+formatTable(schema))
	return err
}
