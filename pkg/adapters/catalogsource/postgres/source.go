// Package postgres discovers a schema catalog from a PostgreSQL database.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource"
	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
	"github.com/ekaya-inc/datagenie-engine/pkg/logging"
)

const columnsQuery = `
	SELECT
		c.table_schema,
		c.table_name,
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES' AS is_nullable,
		COALESCE(pk.is_pk, false) AS is_primary_key,
		COALESCE(col_description(cls.oid, c.ordinal_position::int), '') AS description
	FROM information_schema.columns c
	JOIN information_schema.tables t
		ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	JOIN pg_namespace ns ON ns.nspname = c.table_schema
	JOIN pg_class cls ON cls.relname = c.table_name AND cls.relnamespace = ns.oid
	LEFT JOIN (
		SELECT kcu.table_schema, kcu.table_name, kcu.column_name, true AS is_pk
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
	) pk ON pk.table_schema = c.table_schema
		AND pk.table_name = c.table_name
		AND pk.column_name = c.column_name
	WHERE t.table_type IN ('BASE TABLE', 'VIEW')
	  AND c.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	  AND ($1::text[] IS NULL OR c.table_schema = ANY($1))
	ORDER BY c.table_schema, c.table_name, c.ordinal_position
`

// Source discovers tables and views over information_schema.
type Source struct {
	config *Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ catalogsource.Source = (*Source)(nil)

// NewSource connects to PostgreSQL. If logger is nil, a no-op logger is used.
func NewSource(ctx context.Context, cfg *Config, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	connStr := buildConnectionString(cfg)
	logger.Debug("Connecting to postgres", zap.String("dsn", logging.SanitizeConnectionString(connStr)))
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Source{config: cfg, pool: pool, logger: logger.Named("catalog-postgres")}, nil
}

// Load implements catalogsource.Source.
func (s *Source) Load(ctx context.Context) (*catalog.Catalog, error) {
	var schemas []string
	if len(s.config.Schemas) > 0 {
		schemas = s.config.Schemas
	}

	rows, err := s.pool.Query(ctx, columnsQuery, schemas)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var discovered []catalogsource.ColumnRow
	for rows.Next() {
		var r catalogsource.ColumnRow
		if err := rows.Scan(&r.SchemaName, &r.TableName, &r.ColumnName, &r.DataType,
			&r.IsNullable, &r.IsPrimaryKey, &r.Description); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		discovered = append(discovered, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(discovered) == 0 {
		return nil, fmt.Errorf("no tables found in database %s", s.config.Database)
	}

	cat, err := catalogsource.BuildCatalog(discovered)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Discovered postgres catalog",
		zap.String("database", s.config.Database),
		zap.Int("tables", cat.Len()),
		zap.Int("columns", len(discovered)))
	return cat, nil
}

// Close releases the connection pool.
func (s *Source) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func init() {
	catalogsource.Register(catalogsource.Registration{
		Info: catalogsource.SourceInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Discover tables and views from PostgreSQL 12+",
		},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (catalogsource.Source, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewSource(ctx, cfg, logger)
		},
	})
}
