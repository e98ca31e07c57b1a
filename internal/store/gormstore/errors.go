package gormstore

import (
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgLockNotAvailableCode = "55P03"
	pgDeadlockCode         = "40P01"
	mysqlLockWaitTimeout   = 1205
	mysqlDeadlock          = 1213
	sqliteBusyCode         = 5
	sqliteLockedCode       = 6

	errorOperationStore     = "store"
	errorSubjectBooking     = "booking"
	errorSubjectGuest       = "guest"
	errorSubjectHotel       = "hotel"
	errorSubjectInventory   = "inventory"
	errorSubjectMinPrice    = "min_price"
	errorSubjectRoom        = "room"
	errorSubjectTransaction = "transaction"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDelete         = "delete"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLock           = "lock"
	errorCodeLockTimeout    = "lock_timeout"
	errorCodeLockWait       = "lock_wait"
	errorCodeUpdate         = "update"
	errorCodeUpdateStatus   = "update_status"
	errorCodeUpsert         = "upsert"
)

// wrapStoreError tags err with the store operation. Lock waits that ran out
// surface as reservation.ErrInsufficientInventory.
func wrapStoreError(subject string, code string, err error) error {
	if isLockUnavailable(err) {
		return reservation.WrapError(errorOperationStore, subject, errorCodeLockTimeout,
			fmt.Errorf("%w: %w", reservation.ErrInsufficientInventory, err))
	}
	return reservation.WrapError(errorOperationStore, subject, code, err)
}

func wrapLookupError(subject string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapStoreError(subject, errorCodeGet, reservation.ErrNotFound)
	}
	return wrapStoreError(subject, errorCodeGet, err)
}

func isLockUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailableCode || pgErr.Code == pgDeadlockCode
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlLockWaitTimeout || mysqlErr.Number == mysqlDeadlock
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		primary := sqliteErr.Code() & 0xFF
		return primary == sqliteBusyCode || primary == sqliteLockedCode
	}
	return false
}
