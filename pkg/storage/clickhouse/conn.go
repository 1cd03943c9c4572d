package clickhouse

import (
	"context"
	"fmt"
	"reflect"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/yourusername/traceboard/pkg/config"
)

// Querier runs parameterised statements. Params are bound server-side and
// referenced in the statement as {name:Type}.
type Querier interface {
	// Rows returns every row as a column-name to value map.
	Rows(ctx context.Context, query string, params map[string]string) ([]map[string]any, error)
	// Select scans every row into dest, a pointer to a slice of structs
	// tagged with `ch:"column"`.
	Select(ctx context.Context, dest any, query string, params map[string]string) error
	Ping(ctx context.Context) error
	Close() error
}

// Conn is a Querier backed by a ClickHouse connection pool
type Conn struct {
	conn driver.Conn
}

// Open connects to the configured ClickHouse servers
func Open(cfg config.ClickHouseConfig) (*Conn, error) {
	conn, err := ch.Open(&ch.Options{
		Addr: cfg.Addresses,
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}
	return &Conn{conn: conn}, nil
}

func (c *Conn) Rows(ctx context.Context, query string, params map[string]string) ([]map[string]any, error) {
	rows, err := c.conn.Query(ch.Context(ctx, ch.WithParameters(params)), query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := rows.ColumnTypes()
	var out []map[string]any
	for rows.Next() {
		dest := make([]any, len(types))
		for i, t := range types {
			dest[i] = reflect.New(t.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(types))
		for i, t := range types {
			row[t.Name()] = reflect.ValueOf(dest[i]).Elem().Interface()
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (c *Conn) Select(ctx context.Context, dest any, query string, params map[string]string) error {
	return c.conn.Select(ch.Context(ctx, ch.WithParameters(params)), dest, query)
}

func (c *Conn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
