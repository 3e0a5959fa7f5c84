package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/richard-senior/podds/internal/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by FindByPrimaryKey when no row matches
var ErrNotFound = errors.New("record not found")

// Persistable rows describe their columns with struct tags:
//
//	column  column name (defaults to the lower cased field name)
//	dbtype  sqlite column definition; fields without one are not stored
//	primary "true" for primary key columns, compound keys allowed
//	index   "true" to create a single column index
type Persistable interface {
	TableName() string
}

// BeforeSaver rows are validated or completed before they are written
type BeforeSaver interface {
	BeforeSave() error
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store owns one sqlite database
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the parent directory if needed, opens the database and creates
// the podds tables
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps sqlite writers from contending for the file lock
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.Migrate(&RatingRow{}, &ResultRow{}, &FindingRow{}); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Database initialized successfully", path)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path is where the database lives
func (s *Store) Path() string {
	return s.path
}

// Migrate creates the table and indexes of each row type if they do not exist
func (s *Store) Migrate(rows ...Persistable) error {
	for _, row := range rows {
		table := row.TableName()
		createSQL := generateCreateTableSQL(row, table)
		logger.Debug("Creating table with SQL", createSQL)
		if _, err := s.db.Exec(createSQL); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
		for _, query := range generateIndexSQL(row, table) {
			if _, err := s.db.Exec(query); err != nil {
				logger.Warn("Failed to create index", query, err)
			}
		}
	}
	return nil
}

//////////////////////////////////////////////////////////////////
////// STRUCT TAG REFLECTION
//////////////////////////////////////////////////////////////////

type column struct {
	name    string
	dbType  string
	primary bool
	index   bool
	field   int
}

func structType(obj any) reflect.Type {
	t := reflect.TypeOf(obj)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func columnsOf(obj any) []column {
	t := structType(obj)
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		dbType := f.Tag.Get("dbtype")
		if dbType == "" {
			continue
		}
		name := f.Tag.Get("column")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		cols = append(cols, column{
			name:    name,
			dbType:  dbType,
			primary: f.Tag.Get("primary") == "true",
			index:   f.Tag.Get("index") == "true",
			field:   i,
		})
	}
	return cols
}

func generateCreateTableSQL(obj any, table string) string {
	var defs, primary []string
	for _, c := range columnsOf(obj) {
		defs = append(defs, c.name+" "+c.dbType)
		if c.primary {
			primary = append(primary, c.name)
		}
	}
	if len(primary) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primary, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
}

func generateIndexSQL(obj any, table string) []string {
	var out []string
	for _, c := range columnsOf(obj) {
		if c.index {
			out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", table, c.name, table, c.name))
		}
	}
	return out
}

func fieldValues(obj any) reflect.Value {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v
}

// primaryKeyOf reads the primary key columns of obj in declaration order
func primaryKeyOf(obj any) ([]string, []any) {
	v := fieldValues(obj)
	var names []string
	var values []any
	for _, c := range columnsOf(obj) {
		if c.primary {
			names = append(names, c.name)
			values = append(values, v.Field(c.field).Interface())
		}
	}
	return names, values
}

func whereClause(names []string) string {
	conds := make([]string, len(names))
	for i, n := range names {
		conds[i] = n + " = ?"
	}
	return strings.Join(conds, " AND ")
}

func selectColumns(obj any) ([]string, []any) {
	v := fieldValues(obj)
	var names []string
	var dest []any
	for _, c := range columnsOf(obj) {
		names = append(names, c.name)
		dest = append(dest, v.Field(c.field).Addr().Interface())
	}
	return names, dest
}

//////////////////////////////////////////////////////////////////
////// CRUD
//////////////////////////////////////////////////////////////////

// Save inserts obj or updates it when its primary key already exists
func (s *Store) Save(obj Persistable) error {
	return save(s.db, obj)
}

// BulkSave saves every object in one transaction; nothing is written if any fails
func (s *Store) BulkSave(objects []Persistable) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, obj := range objects {
		if err := save(tx, obj); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	logger.Debug("Bulk saved", len(objects), "rows")
	return nil
}

func save(ex execer, obj Persistable) error {
	if h, ok := obj.(BeforeSaver); ok {
		if err := h.BeforeSave(); err != nil {
			return fmt.Errorf("before save hook failed: %w", err)
		}
	}
	exists, err := exists(ex, obj)
	if err != nil {
		return err
	}
	if exists {
		return update(ex, obj)
	}
	return insert(ex, obj)
}

func insert(ex execer, obj Persistable) error {
	table := obj.TableName()
	v := fieldValues(obj)
	var names, marks []string
	var values []any
	for _, c := range columnsOf(obj) {
		names = append(names, c.name)
		marks = append(marks, "?")
		values = append(values, v.Field(c.field).Interface())
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(marks, ", "))
	if _, err := ex.Exec(query, values...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func update(ex execer, obj Persistable) error {
	table := obj.TableName()
	v := fieldValues(obj)
	var sets []string
	var values []any
	for _, c := range columnsOf(obj) {
		if c.primary {
			continue
		}
		sets = append(sets, c.name+" = ?")
		values = append(values, v.Field(c.field).Interface())
	}
	if len(sets) == 0 {
		return nil
	}
	keys, keyValues := primaryKeyOf(obj)
	values = append(values, keyValues...)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), whereClause(keys))
	if _, err := ex.Exec(query, values...); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

// Exists checks whether a row with obj's primary key is stored
func (s *Store) Exists(obj Persistable) (bool, error) {
	return exists(s.db, obj)
}

func exists(ex execer, obj Persistable) (bool, error) {
	table := obj.TableName()
	keys, values := primaryKeyOf(obj)
	if len(keys) == 0 {
		return false, fmt.Errorf("table %s has no primary key", table)
	}
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, whereClause(keys))
	if err := ex.QueryRow(query, values...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check existence in %s: %w", table, err)
	}
	return count > 0, nil
}

// Delete removes the row with obj's primary key
func (s *Store) Delete(obj Persistable) error {
	table := obj.TableName()
	keys, values := primaryKeyOf(obj)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, whereClause(keys))
	if _, err := s.db.Exec(query, values...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// FindByPrimaryKey fills obj from the row matching the primary key already set on it
func (s *Store) FindByPrimaryKey(obj Persistable) error {
	table := obj.TableName()
	names, dest := selectColumns(obj)
	keys, values := primaryKeyOf(obj)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(names, ", "), table, whereClause(keys))
	if err := s.db.QueryRow(query, values...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w in %s", ErrNotFound, table)
		}
		return fmt.Errorf("failed to scan row from %s: %w", table, err)
	}
	return nil
}

// FindAll loads every row of T's table
func FindAll[T any, PT interface {
	*T
	Persistable
}](s *Store) ([]*T, error) {
	return FindWhere[T, PT](s, "1 = 1")
}

// FindWhere loads the rows of T's table matching a WHERE clause
func FindWhere[T any, PT interface {
	*T
	Persistable
}](s *Store, where string, args ...any) ([]*T, error) {
	var probe T
	table := PT(&probe).TableName()
	names, _ := selectColumns(&probe)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(names, ", "), table, where)
	logger.Debug("FindWhere SQL", query)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		row := new(T)
		_, dest := selectColumns(row)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %s: %w", table, err)
	}
	return out, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
