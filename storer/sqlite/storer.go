package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/storer"
	"go.nhat.io/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	_ "modernc.org/sqlite"
)

const storeName = "sqlite"

var DRIVER string

func init() {
	driver, err := otelsql.Register(
		"sqlite",
		otelsql.TraceQueryWithoutArgs(),
		otelsql.TraceRowsClose(),
		otelsql.TraceRowsAffected(),
		otelsql.WithSystem(semconv.DBSystemSqlite),
	)
	if err != nil {
		detail := "failed to register sqlite storer with otel"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	DRIVER = driver
}

type row struct {
	ID        string         `db:"id"`
	Fields    string         `db:"fields"`
	Embedding sql.NullString `db:"embedding"`
}

type sqliteStorer struct {
	options storer.Options
	db      *sqlx.DB
}

func (s *sqliteStorer) ReadAll(ctx context.Context) ([]record.Record, error) {
	rows := []row{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, fields, embedding FROM movies ORDER BY seq`); err != nil {
		return nil, &storer.StoreReadError{Store: storeName, Err: err}
	}

	header := storer.Columns(s.options.Schema)
	records := make([]record.Record, 0, len(rows))

	for _, r := range rows {
		fields := map[string]string{}
		if err := json.Unmarshal([]byte(r.Fields), &fields); err != nil {
			return nil, &storer.StoreReadError{Store: storeName, Err: fmt.Errorf("record %q: %w", r.ID, err)}
		}

		cells := make([]string, len(header))
		for i, name := range header {
			cells[i] = fields[name]
		}
		cells[len(cells)-1] = r.Embedding.String

		rec, err := storer.FromRow(s.options.Schema, header, cells)
		if err != nil {
			return nil, &storer.StoreReadError{Store: storeName, Err: fmt.Errorf("record %q: %w", r.ID, err)}
		}

		records = append(records, rec)
	}

	return records, nil
}

func (s *sqliteStorer) WriteEmbedding(ctx context.Context, id string, vector []float32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE movies SET embedding = ? WHERE id = ?`, storer.EncodeEmbedding(vector), id)
	if err != nil {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: err}
	}

	if n == 0 {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: storer.ErrRecordNotFound}
	}

	return nil
}

func (s *sqliteStorer) AppendRecord(ctx context.Context, rec record.Record) error {
	id := rec.ID()
	if len(id) == 0 {
		id = uuid.New().String()
		rec = rec.Clone()
		if err := rec.SetText(s.options.Schema.Identifier(), id); err != nil {
			return &storer.StoreWriteError{Store: storeName, Err: err}
		}
	}

	names := s.options.Schema.Names()
	cells := storer.Row(rec, names)

	fields := make(map[string]string, len(names))
	for i, name := range names {
		fields[name] = cells[i]
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: err}
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO movies (id, fields, embedding) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		id,
		string(data),
		storer.EncodeEmbedding(rec.Embedding),
	)
	if err != nil {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: err}
	}

	if n == 0 {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: storer.ErrDuplicateID}
	}

	return nil
}

func (s *sqliteStorer) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS movies (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		fields TEXT NOT NULL,
		embedding TEXT
	)`)
	return err
}

func NewStorer(opts ...storer.Option) storer.Storer {
	options := storer.NewOptions(opts...)

	s := &sqliteStorer{
		options: options,
	}

	// file:movies.db?_pragma=busy_timeout(5000)
	conn, err := sql.Open(DRIVER, options.Location)
	if err != nil {
		detail := "failed to open sqlite storer"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	// one writer at a time keeps sqlite from returning busy errors
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		detail := "failed to ping with sqlite storer"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	if err := otelsql.RecordStats(conn); err != nil {
		detail := "failed to initialize sqlite instrumentation for sqlite storer"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	s.db = sqlx.NewDb(conn, "sqlite")

	if err := s.migrate(options.Context); err != nil {
		detail := "failed to migrate sqlite storer"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	return s
}
