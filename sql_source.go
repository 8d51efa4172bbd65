package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// sqlDialect holds the catalog queries and identifier rules of one driver.
type sqlDialect interface {
	driver() string
	listTables(ctx context.Context, db *sql.DB) ([]TableSummary, error)
	tableExists(ctx context.Context, db *sql.DB, tableID string) (bool, error)
	listColumns(ctx context.Context, db *sql.DB, tableID string) ([]ColumnDescriptor, error)
	selectRows(tableID string) string
	// updateCell returns the row key after the update; it changes when the
	// update moves the row.
	updateCell(tableID, column string) string
	rowKeyArg(key string) (interface{}, error)
}

type SQLSource struct {
	name    string
	db      *sql.DB
	dialect sqlDialect
	logger  *slog.Logger
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func NewSQLSource(cfg *SourceConfig, logger *slog.Logger) (*SQLSource, error) {
	var (
		dialect sqlDialect
		connStr string
	)

	switch cfg.Type {
	case SourceSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("sqlite connection requires a file path")
		}
		dialect = sqliteDialect{}
		connStr = cfg.Path
	default:
		dialect = postgresDialect{}
		connStr = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Database,
			cfg.SSLMode,
		)
	}

	db, err := sql.Open(dialect.driver(), connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newSQLSourceFromDB(cfg.Name, db, dialect, logger), nil
}

func newSQLSourceFromDB(name string, db *sql.DB, dialect sqlDialect, logger *slog.Logger) *SQLSource {
	if logger == nil {
		logger = discardLogger()
	}
	return &SQLSource{
		name:    name,
		db:      db,
		dialect: dialect,
		logger:  logger.With("source", name, "driver", dialect.driver()),
	}
}

func (s *SQLSource) Name() string {
	return s.name
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}

func (s *SQLSource) ListTables(ctx context.Context) ([]TableSummary, error) {
	tables, err := s.dialect.listTables(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (s *SQLSource) ensureTable(ctx context.Context, tableID string) error {
	ok, err := s.dialect.tableExists(ctx, s.db, tableID)
	if err != nil {
		return fmt.Errorf("failed to look up table %s: %w", tableID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	return nil
}

func (s *SQLSource) FetchColumns(ctx context.Context, tableID string) ([]ColumnDescriptor, error) {
	if err := s.ensureTable(ctx, tableID); err != nil {
		return nil, err
	}
	columns, err := s.dialect.listColumns(ctx, s.db, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", tableID, err)
	}
	return columns, nil
}

func (s *SQLSource) FetchRows(ctx context.Context, tableID string, page Page) ([]RowRecord, error) {
	if err := s.ensureTable(ctx, tableID); err != nil {
		return nil, err
	}
	if page.Limit <= 0 {
		page.Limit = defaultPageSize
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.selectRows(tableID), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := make([]RowRecord, 0, page.Limit)
	for rows.Next() {
		values := make([]interface{}, len(columnTypes))
		valuePtrs := make([]interface{}, len(columnTypes))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		row := make(RowRecord, len(columnTypes))
		for i, ct := range columnTypes {
			row[ct.Name()] = tagSQLValue(values[i], ct.DatabaseTypeName())
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	s.logger.Debug("fetched rows", "table", tableID, "count", len(results), "offset", page.Offset)
	return results, nil
}

func (s *SQLSource) UpdateCell(ctx context.Context, tableID string, update CellUpdate) (string, error) {
	columns, err := s.FetchColumns(ctx, tableID)
	if err != nil {
		return "", err
	}
	if !hasColumn(columns, update.Column) {
		return "", &DataIntegrityError{Column: update.Column, Reason: "not a column of " + tableID, Err: ErrMissingColumn}
	}
	if update.RowKey == "" {
		return "", fmt.Errorf("update of %s.%s needs a row key", tableID, update.Column)
	}

	keyArg, err := s.dialect.rowKeyArg(update.RowKey)
	if err != nil {
		return "", err
	}
	value, err := sqlArg(update.Value)
	if err != nil {
		return "", err
	}

	var key string
	err = s.db.QueryRowContext(ctx, s.dialect.updateCell(tableID, update.Column), value, keyArg).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to update %s: %w: key %s", tableID, ErrRowNotFound, update.RowKey)
	}
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", tableID, err)
	}

	s.logger.Info("updated cell", "table", tableID, "column", update.Column, "key", update.RowKey, "new_key", key)
	return key, nil
}

func hasColumn(columns []ColumnDescriptor, name string) bool {
	for _, col := range columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// tagSQLValue wraps a scanned driver value in the tag the viewer shows for it.
func tagSQLValue(value interface{}, dbType string) CellValue {
	switch v := value.(type) {
	case nil:
		return NewNullCell("Null")
	case int64:
		return NewIntCell("Int", v)
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return NewStringCell("Float", strconv.FormatFloat(v, 'g', -1, 64))
		}
		return NewFloatCell("Float", v)
	case bool:
		return NewBoolCell("Bool", v)
	case time.Time:
		return NewStringCell("Timestamp", v.Format(time.RFC3339Nano))
	case string:
		return NewStringCell("String", v)
	case []byte:
		switch strings.ToUpper(dbType) {
		case "NUMERIC", "DECIMAL":
			if !isJSONNumber(string(v)) {
				return NewStringCell("Decimal", string(v))
			}
			return NewNumberCell("Decimal", json.Number(string(v)))
		case "BYTEA", "BLOB":
			return NewStringCell("Bytes", base64.StdEncoding.EncodeToString(v))
		}
		if utf8.Valid(v) {
			return NewStringCell("String", string(v))
		}
		return NewStringCell("Bytes", base64.StdEncoding.EncodeToString(v))
	default:
		return NewStringCell("String", fmt.Sprintf("%v", v))
	}
}

// sqlArg converts an edited cell back into a driver argument.
func sqlArg(cell CellValue) (interface{}, error) {
	switch cell.Kind() {
	case KindNull:
		return nil, nil
	case KindString:
		if cell.Tag() == "Bytes" {
			raw, err := base64.StdEncoding.DecodeString(cell.Text())
			if err != nil {
				return nil, fmt.Errorf("bytes must be base64: %w", err)
			}
			return raw, nil
		}
		if cell.Tag() == "Float" {
			if f, err := strconv.ParseFloat(cell.Text(), 64); err == nil {
				return f, nil
			}
		}
		return cell.Text(), nil
	case KindBool:
		return cell.Payload(), nil
	case KindNumber:
		text := cell.Text()
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", text, err)
		}
		return f, nil
	case KindComposite:
		return cell.Text(), nil
	default:
		return nil, errors.New("cannot write a malformed cell")
	}
}

type postgresDialect struct{}

func (postgresDialect) driver() string { return "postgres" }

func splitTableID(tableID string) (schema, table string) {
	if i := strings.Index(tableID, "."); i > 0 {
		return tableID[:i], tableID[i+1:]
	}
	return "public", tableID
}

func (postgresDialect) listTables(ctx context.Context, db *sql.DB) ([]TableSummary, error) {
	query := `
		SELECT
			t.schemaname,
			t.tablename,
			COALESCE(c.reltuples, 0)::bigint AS estimated_rows
		FROM pg_tables t
		JOIN pg_namespace n ON n.nspname = t.schemaname
		JOIN pg_class c ON c.relname = t.tablename AND c.relnamespace = n.oid
		WHERE t.schemaname NOT IN ('pg_catalog', 'information_schema')
		ORDER BY t.schemaname, t.tablename
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var tables []TableSummary
	for rows.Next() {
		var schemaName, tableName string
		var estimatedRows int64
		if err := rows.Scan(&schemaName, &tableName, &estimatedRows); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if estimatedRows < 0 {
			estimatedRows = 0
		}
		tables = append(tables, TableSummary{
			Name:     schemaName + "." + tableName,
			RowCount: estimatedRows,
		})
	}
	return tables, rows.Err()
}

func (postgresDialect) tableExists(ctx context.Context, db *sql.DB, tableID string) (bool, error) {
	schema, table := splitTableID(tableID)
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`, schema, table).Scan(&exists)
	return exists, err
}

func (postgresDialect) listColumns(ctx context.Context, db *sql.DB, tableID string) ([]ColumnDescriptor, error) {
	schema, table := splitTableID(tableID)
	rows, err := db.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns := make([]ColumnDescriptor, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		columns = append(columns, ColumnDescriptor{Name: name})
	}
	return columns, rows.Err()
}

func (postgresDialect) selectRows(tableID string) string {
	schema, table := splitTableID(tableID)
	return fmt.Sprintf(`
		SELECT ctid::text AS %s, * FROM %s.%s
		ORDER BY ctid
		LIMIT $1 OFFSET $2
	`, quoteIdentifier(RowKeyColumn), quoteIdentifier(schema), quoteIdentifier(table))
}

func (postgresDialect) updateCell(tableID, column string) string {
	schema, table := splitTableID(tableID)
	return fmt.Sprintf(`
		UPDATE %s.%s
		SET %s = $1
		WHERE ctid = $2::tid
		RETURNING ctid::text
	`, quoteIdentifier(schema), quoteIdentifier(table), quoteIdentifier(column))
}

func (postgresDialect) rowKeyArg(key string) (interface{}, error) {
	if !strings.HasPrefix(key, "(") {
		return nil, fmt.Errorf("invalid ctid %q", key)
	}
	return key, nil
}

type sqliteDialect struct{}

func (sqliteDialect) driver() string { return "sqlite3" }

func (sqliteDialect) listTables(ctx context.Context, db *sql.DB) ([]TableSummary, error) {
	const query = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
			AND name NOT LIKE 'sqlite_%'
		ORDER BY name;
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		names = append(names, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	tables := make([]TableSummary, 0, len(names))
	for _, name := range names {
		var count int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdentifier(name))
		if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
		tables = append(tables, TableSummary{Name: name, RowCount: count})
	}
	return tables, nil
}

func (sqliteDialect) tableExists(ctx context.Context, db *sql.DB, tableID string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, tableID,
	).Scan(&count)
	return count > 0, err
}

func (sqliteDialect) listColumns(ctx context.Context, db *sql.DB, tableID string) ([]ColumnDescriptor, error) {
	query := fmt.Sprintf(`PRAGMA table_info(%s);`, quoteIdentifier(tableID))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	columns := make([]ColumnDescriptor, 0)
	for rows.Next() {
		var (
			cid        int
			name       string
			dataType   string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, ColumnDescriptor{Name: name})
	}
	return columns, rows.Err()
}

func (sqliteDialect) selectRows(tableID string) string {
	return fmt.Sprintf(`
		SELECT rowid AS %s, *
		FROM %s
		ORDER BY rowid
		LIMIT ? OFFSET ?
	`, quoteIdentifier(RowKeyColumn), quoteIdentifier(tableID))
}

func (sqliteDialect) updateCell(tableID, column string) string {
	return fmt.Sprintf(`
		UPDATE %s
		SET %s = ?
		WHERE rowid = ?
		RETURNING rowid
	`, quoteIdentifier(tableID), quoteIdentifier(column))
}

func (sqliteDialect) rowKeyArg(key string) (interface{}, error) {
	return parseRowID(key)
}

func parseRowID(rowID string) (interface{}, error) {
	if rowID == "" {
		return nil, fmt.Errorf("rowid is empty")
	}
	if i, err := strconv.ParseInt(rowID, 10, 64); err == nil {
		return i, nil
	}
	return rowID, nil
}
