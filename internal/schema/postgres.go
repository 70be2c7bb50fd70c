package schema

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ForeignKey is one outgoing reference between elements. Rendered into
// the prompt as a join hint when present.
type ForeignKey struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
}

// PostgresSource introspects a live Postgres database through
// information_schema. One source is created per request; schemas are
// never cached across requests.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Load reads every base table in the public schema with its columns in
// ordinal order.
func (p *PostgresSource) Load(ctx context.Context) (Schema, error) {
	const query = `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("schema introspection: %w", err)
	}
	defer rows.Close()

	var out Schema
	index := map[string]int{}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("schema introspection: %w", err)
		}
		i, ok := index[table]
		if !ok {
			out = append(out, Element{Name: table})
			i = len(out) - 1
			index[table] = i
		}
		out[i].Fields = append(out[i].Fields, Field{
			Name:     column,
			Type:     dataType,
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema introspection: %w", err)
	}
	return out, nil
}

// LoadForeignKeys reads formal foreign key constraints.
func (p *PostgresSource) LoadForeignKeys(ctx context.Context) ([]ForeignKey, error) {
	const query = `
		SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'
		ORDER BY kcu.table_name, kcu.column_name`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	defer rows.Close()

	var out []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Table, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, fmt.Errorf("foreign keys: %w", err)
		}
		out = append(out, fk)
	}
	return out, rows.Err()
}
