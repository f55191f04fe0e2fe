package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"shorturl-go/internal/storage"
)

const mysqlDuplicateEntry = 1062

// translateError 将驱动层的唯一约束冲突转换为 storage.DuplicateError
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if field, ok := duplicateField(err); ok {
		return &storage.DuplicateError{Field: field, Err: err}
	}
	return err
}

func duplicateField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.UniqueViolation {
			return columnOf(pgErr.ConstraintName + " " + pgErr.Detail), true
		}
		return "", false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number == mysqlDuplicateEntry {
			return columnOf(myErr.Message), true
		}
		return "", false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return columnOf(err.Error()), true
	}

	// sqlite: UNIQUE constraint failed: short_urls.custom_alias
	if msg := err.Error(); strings.Contains(msg, "UNIQUE constraint failed") {
		return columnOf(msg), true
	}
	return "", false
}

func columnOf(msg string) string {
	switch {
	case strings.Contains(msg, storage.FieldCustomAlias):
		return storage.FieldCustomAlias
	case strings.Contains(msg, storage.FieldShortCode):
		return storage.FieldShortCode
	default:
		return ""
	}
}
