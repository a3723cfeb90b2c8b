package localsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentworkforce/botsync/internal/botsync"
)

const (
	sqlFlowsTableName   = "botsync_flows"
	sqlAirulesTableName = "botsync_airules"
	sqlAirulesKey       = "default"
	sqlOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// SQLSource reads flow documents from a table keyed by flow name and the
// airules document from a single keyed row. Both tables are created on first
// use. Only portable SQL is issued so Postgres and SQLite share the code.
type SQLSource struct {
	driver       string
	dsn          string
	flowsTable   string
	airulesTable string
	airulesKey   string
	openDB       sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

var _ Source = (*SQLSource)(nil)

func NewPostgresSource(dsn string) (*SQLSource, error) {
	return newSQLSource("postgres", dsn)
}

func NewSQLiteSource(path string) (*SQLSource, error) {
	return newSQLSource("sqlite3", path)
}

func newSQLSource(driver, dsn string) (*SQLSource, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &SQLSource{
		driver:       driver,
		dsn:          dsn,
		flowsTable:   sqlFlowsTableName,
		airulesTable: sqlAirulesTableName,
		airulesKey:   sqlAirulesKey,
		openDB:       sql.Open,
	}, nil
}

func (s *SQLSource) ListFlows(ctx context.Context) ([]botsync.Flow, error) {
	if err := s.ensureReady(); err != nil {
		return nil, s.fail("", err)
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT name, document FROM %s ORDER BY name", quoteIdentifier(s.flowsTable))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.fail(s.flowsTable, err)
	}
	defer rows.Close()

	flows := []botsync.Flow{}
	for rows.Next() {
		var name, document string
		if err := rows.Scan(&name, &document); err != nil {
			return nil, s.fail(s.flowsTable, err)
		}
		key := s.flowsTable + "/" + name
		flow, err := decodeFlow([]byte(document))
		if err != nil {
			return nil, s.fail(key, err)
		}
		if flow.Name() != name {
			return nil, s.fail(key, fmt.Errorf("document name %q does not match row name", flow.Name()))
		}
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(s.flowsTable, err)
	}
	return flows, nil
}

// Airules returns the stored document; a missing row yields empty airules.
func (s *SQLSource) Airules(ctx context.Context) (botsync.Airules, error) {
	if err := s.ensureReady(); err != nil {
		return nil, s.fail("", err)
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT document FROM %s WHERE source_key = %s",
		quoteIdentifier(s.airulesTable), quoteLiteral(s.airulesKey))
	var document string
	err := s.db.QueryRowContext(ctx, query).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return botsync.Airules{}, nil
	}
	key := s.airulesTable + "/" + s.airulesKey
	if err != nil {
		return nil, s.fail(key, err)
	}
	rules, err := botsync.ParseAirules([]byte(document))
	if err != nil {
		return nil, s.fail(key, err)
	}
	return rules, nil
}

func (s *SQLSource) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLSource) fail(path string, err error) error {
	return &SourceError{Source: s.driver, Path: path, Err: err}
}

func (s *SQLSource) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB(s.driver, s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
		defer cancel()

		statements := []string{
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					name TEXT PRIMARY KEY,
					document TEXT NOT NULL
				)`, quoteIdentifier(s.flowsTable)),
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					source_key TEXT PRIMARY KEY,
					document TEXT NOT NULL
				)`, quoteIdentifier(s.airulesTable)),
		}
		for _, statement := range statements {
			if _, err := db.ExecContext(ctx, statement); err != nil {
				_ = db.Close()
				s.initErr = err
				return
			}
		}
		s.db = db
	})
	return s.initErr
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
