package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapDBErrorNil(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
}

func TestMapDBErrorContext(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, CodeOf(MapDBError(context.DeadlineExceeded)))
	assert.Equal(t, ErrCodeCanceled, CodeOf(MapDBError(context.Canceled)))
}

func TestMapDBErrorNoRows(t *testing.T) {
	err := MapDBError(fmt.Errorf("scan job: %w", sql.ErrNoRows))
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))
}

func TestMapDBErrorPgCodes(t *testing.T) {
	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	assert.Equal(t, ErrCodeConflict, CodeOf(MapDBError(unique)))

	check := &pgconn.PgError{Code: pgerrcode.CheckViolation, Message: "status out of range"}
	assert.Equal(t, ErrCodeValidation, CodeOf(MapDBError(check)))

	notNull := &pgconn.PgError{Code: pgerrcode.NotNullViolation}
	assert.Equal(t, ErrCodeValidation, CodeOf(MapDBError(notNull)))

	other := &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	assert.Equal(t, ErrCodeInternal, CodeOf(MapDBError(other)))
}

func TestMapDBErrorPassthrough(t *testing.T) {
	plain := errors.New("dial tcp: connection refused")
	assert.Equal(t, plain, MapDBError(plain))
}

func TestIsUniqueViolation(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation})
	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.CheckViolation}))
}
