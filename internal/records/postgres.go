package records

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/dvloznov/finance-sankey/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DefaultPostgresTable is read when the URI has no table parameter.
const DefaultPostgresTable = "budget_records"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSource reads records from a table with the columns
// id, category, type, item and amount. Rows are read in id order.
type PostgresSource struct {
	DSN   string
	Table string
}

// NewPostgresSource parses a postgres:// URI. The optional "table" query
// parameter names the table and is removed before connecting.
func NewPostgresSource(uri string) (*PostgresSource, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresSource: invalid URI: %w", err)
	}

	q := u.Query()
	table := q.Get("table")
	if table == "" {
		table = DefaultPostgresTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("NewPostgresSource: invalid table name %q", table)
	}
	q.Del("table")
	u.RawQuery = q.Encode()

	return &PostgresSource{DSN: u.String(), Table: table}, nil
}

func (s *PostgresSource) String() string {
	return "postgres:" + s.Table
}

// Load implements Source.
func (s *PostgresSource) Load(ctx context.Context) ([]domain.Record, error) {
	pool, err := pgxpool.New(ctx, s.DSN)
	if err != nil {
		return nil, fmt.Errorf("PostgresSource: connect: %w", err)
	}
	defer pool.Close()

	return s.LoadWithPool(ctx, pool)
}

// LoadWithPool reads the records through an existing pool.
func (s *PostgresSource) LoadWithPool(ctx context.Context, pool *pgxpool.Pool) ([]domain.Record, error) {
	rows, err := pool.Query(ctx, s.query())
	if err != nil {
		return nil, fmt.Errorf("PostgresSource: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var category, typ, item, amount *string
		if err := rows.Scan(&category, &typ, &item, &amount); err != nil {
			return nil, fmt.Errorf("PostgresSource: scan row %d: %w", len(out), err)
		}

		raw := rawRecord{Category: category, Type: typ, Item: item}
		if amount != nil {
			d, err := decimal.NewFromString(*amount)
			if err != nil {
				return nil, fmt.Errorf("PostgresSource: row %d: amount %q: %w", len(out), *amount, err)
			}
			raw.Amount = &d
		}
		rec, err := raw.toRecord(len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PostgresSource: rows: %w", err)
	}

	return out, nil
}

func (s *PostgresSource) query() string {
	return fmt.Sprintf(`
		SELECT category, type, item, amount::text
		FROM %s
		ORDER BY id`, s.Table)
}
