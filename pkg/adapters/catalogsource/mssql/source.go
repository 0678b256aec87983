// Package mssql discovers a schema catalog from Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource"
	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
)

const columnsQuery = `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(o.schema_id) AS table_schema,
	    o.name AS table_name,
	    c.name AS column_name,
	    tp.name AS data_type,
	    CAST(c.is_nullable AS bit) AS is_nullable,
	    CAST(CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS bit) AS is_primary_key,
	    COALESCE(CAST(ep.value AS nvarchar(4000)), N'') AS description
	FROM sys.objects o
	INNER JOIN sys.columns c ON c.object_id = o.object_id
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	LEFT JOIN sys.extended_properties ep
	    ON ep.major_id = c.object_id AND ep.minor_id = c.column_id
	    AND ep.class = 1 AND ep.name = 'MS_Description'
	WHERE o.type IN ('U', 'V')
	  AND o.is_ms_shipped = 0
	ORDER BY table_schema, table_name, c.column_id
`

// Source discovers user tables and views over the sys catalog views.
type Source struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

var _ catalogsource.Source = (*Source)(nil)

// NewSource opens and pings a SQL Server connection. If logger is nil, a
// no-op logger is used.
func NewSource(ctx context.Context, cfg *Config, logger *zap.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, dsn := cfg.driverAndDSN()
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Source{config: cfg, db: db, logger: logger.Named("catalog-mssql")}, nil
}

// Load implements catalogsource.Source.
func (s *Source) Load(ctx context.Context) (*catalog.Catalog, error) {
	rows, err := s.db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var discovered []catalogsource.ColumnRow
	for rows.Next() {
		var r catalogsource.ColumnRow
		if err := rows.Scan(&r.SchemaName, &r.TableName, &r.ColumnName, &r.DataType,
			&r.IsNullable, &r.IsPrimaryKey, &r.Description); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		discovered = append(discovered, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	if len(discovered) == 0 {
		return nil, fmt.Errorf("no tables found in database %s", s.config.Database)
	}

	cat, err := catalogsource.BuildCatalog(discovered)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Discovered sqlserver catalog",
		zap.String("database", s.config.Database),
		zap.Int("tables", cat.Len()))
	return cat, nil
}

// Close releases the connection.
func (s *Source) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func init() {
	catalogsource.Register(catalogsource.Registration{
		Info: catalogsource.SourceInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "Discover tables and views from SQL Server 2016+ or Azure SQL",
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
