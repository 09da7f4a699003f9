package storage

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// deadlockRetries bounds the retry loop for multi-writer backends.
const deadlockRetries = 3

// Storage implements Store on a gorm backend. The sqlite backend is
// single-writer, so writes serialize behind a process-wide mutex; postgres
// writes run concurrently and retry on deadlock instead.
type Storage struct {
	db       *gorm.DB
	dialect  string
	writeMu  sync.Mutex
	isSQLite bool
}

// Open connects to the configured backend. Dialect is "sqlite" or
// "postgres"; for sqlite the DSN is a file path (":memory:" works for
// tests).
func Open(dialect, dsn string) (*Storage, error) {
	var dialector gorm.Dialector
	switch dialect {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, &InvalidError{Reason: "unknown database dialect " + dialect}
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, &DatabaseError{Op: "connect", Err: err}
	}

	return &Storage{db: db, dialect: dialect, isSQLite: dialect == "sqlite"}, nil
}

// Migrate creates or upgrades the schema.
func (s *Storage) Migrate() error {
	err := s.db.AutoMigrate(
		&types.Goal{},
		&types.Strategy{},
		&types.AuditTemplate{},
		&types.Audit{},
		&types.ActionPlan{},
		&types.Action{},
		&types.EfficacyIndicator{},
		&types.Service{},
		&types.ScoringEngine{},
		&types.ActionDescription{},
	)
	if err != nil {
		return &DatabaseError{Op: "migrate", Err: err}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isDeadlock(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "deadlock detected") || strings.Contains(msg, "40P01")
}

// withWrite runs fn in a transaction, serialized on sqlite and wrapped in
// deadlock retry on postgres.
func (s *Storage) withWrite(fn func(tx *gorm.DB) error) error {
	if s.isSQLite {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.db.Transaction(fn)
	}

	var err error
	for attempt := 0; attempt < deadlockRetries; attempt++ {
		err = s.db.Transaction(fn)
		if !isDeadlock(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

// lockForUpdate adds a row-level write lock where the backend supports it.
// SQLite serializes through the write mutex instead.
func (s *Storage) lockForUpdate(tx *gorm.DB) *gorm.DB {
	if s.isSQLite {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// prepareCreate fills in the UUID when the caller did not provide one.
func prepareCreate(base *types.Base) {
	if base.UUID == "" {
		base.UUID = uuid.New().String()
	}
}

// ensureNewUUID rejects a create whose UUID collides with any row,
// tombstoned or not.
func ensureNewUUID(tx *gorm.DB, table, entity, id string) error {
	var n int64
	if err := tx.Table(table).Unscoped().Where("uuid = ?", id).Count(&n).Error; err != nil {
		return &DatabaseError{Op: "create " + entity, Err: err}
	}
	if n > 0 {
		return &AlreadyExistsError{Entity: entity, Ref: id}
	}
	return nil
}

// ensureUniqueName rejects a create that collides on a name-unique column
// among live rows only; tombstoned rows do not block reuse.
func ensureUniqueName(tx *gorm.DB, table, entity, column, value string) error {
	var n int64
	err := tx.Table(table).Where(column+" = ? AND deleted_at IS NULL", value).Count(&n).Error
	if err != nil {
		return &DatabaseError{Op: "create " + entity, Err: err}
	}
	if n > 0 {
		return &AlreadyExistsError{Entity: entity, Ref: value}
	}
	return nil
}

// guardUUID enforces UUID immutability on update: a non-empty incoming UUID
// differing from the stored one is an Invalid error.
func guardUUID(incoming, stored string) error {
	if incoming != "" && incoming != stored {
		return &InvalidError{Reason: "uuid is immutable"}
	}
	return nil
}

// getBy loads one live row matching cond, with optional preloads.
func getBy[T any](s *Storage, entity string, preloads []string, ref, cond string, args ...any) (*T, error) {
	tx := s.db
	for _, p := range preloads {
		tx = tx.Preload(p)
	}
	var out T
	err := tx.Where(cond, args...).First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &NotFoundError{Entity: entity, Ref: ref}
	}
	if err != nil {
		return nil, &DatabaseError{Op: "get " + entity, Err: err}
	}
	return &out, nil
}

// listRows runs a filtered, paginated listing over the entity table.
func listRows[T any](s *Storage, entity, table string, joins map[string]joinColumn, q *ListQuery) ([]*T, error) {
	if q == nil {
		q = &ListQuery{}
	}
	tx := s.db.Model(new(T)).Select(table + ".*")
	tx, err := applyFilters(tx, table, q.Filters, joins, q.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	tx, err = applyPage(tx, table, q)
	if err != nil {
		return nil, err
	}
	var rows []*T
	if err := tx.Find(&rows).Error; err != nil {
		return nil, &DatabaseError{Op: "list " + entity, Err: err}
	}
	return rows, nil
}

// updateRow locks the current row, lets apply mutate it, and saves. The
// not-found and uuid-immutability checks happen under the lock.
func updateRow[T any](s *Storage, entity string, id int64, apply func(cur *T) error) (*T, error) {
	var out *T
	err := s.withWrite(func(tx *gorm.DB) error {
		var cur T
		err := s.lockForUpdate(tx).First(&cur, id).Error
		if err == gorm.ErrRecordNotFound {
			return &NotFoundError{Entity: entity, Ref: refString(id)}
		}
		if err != nil {
			return &DatabaseError{Op: "update " + entity, Err: err}
		}
		if err := apply(&cur); err != nil {
			return err
		}
		if err := tx.Save(&cur).Error; err != nil {
			return &DatabaseError{Op: "update " + entity, Err: err}
		}
		out = &cur
		return nil
	})
	return out, err
}

// softDeleteRow tombstones one row.
func softDeleteRow[T any](s *Storage, entity string, id int64) error {
	return s.withWrite(func(tx *gorm.DB) error {
		res := tx.Delete(new(T), id)
		if res.Error != nil {
			return &DatabaseError{Op: "soft delete " + entity, Err: res.Error}
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: entity, Ref: refString(id)}
		}
		return nil
	})
}

// refCheck names one child table blocking a destroy.
type refCheck struct {
	table    string
	fkColumn string
	by       string
}

// destroyRow hard-deletes a row after verifying no live children reference
// it.
func destroyRow[T any](s *Storage, entity string, id int64, checks []refCheck) error {
	return s.withWrite(func(tx *gorm.DB) error {
		for _, c := range checks {
			var n int64
			err := tx.Table(c.table).
				Where(c.fkColumn+" = ? AND deleted_at IS NULL", id).
				Count(&n).Error
			if err != nil {
				return &DatabaseError{Op: "destroy " + entity, Err: err}
			}
			if n > 0 {
				return &ReferencedError{Entity: entity, Ref: refString(id), By: c.by}
			}
		}
		res := tx.Unscoped().Delete(new(T), id)
		if res.Error != nil {
			return &DatabaseError{Op: "destroy " + entity, Err: res.Error}
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: entity, Ref: refString(id)}
		}
		return nil
	})
}

func refString(id int64) string {
	return "id=" + strconv.FormatInt(id, 10)
}

// Purge hard-deletes tombstones older than the cutoff, children first so
// foreign keys stay coherent.
func (s *Storage) Purge(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	tables := []any{
		&types.Action{},
		&types.EfficacyIndicator{},
		&types.ActionPlan{},
		&types.Audit{},
		&types.AuditTemplate{},
		&types.Strategy{},
		&types.Goal{},
		&types.Service{},
		&types.ScoringEngine{},
		&types.ActionDescription{},
	}
	return s.withWrite(func(tx *gorm.DB) error {
		for _, model := range tables {
			err := tx.Unscoped().
				Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
				Delete(model).Error
			if err != nil {
				return &DatabaseError{Op: "purge", Err: err}
			}
		}
		return nil
	})
}
