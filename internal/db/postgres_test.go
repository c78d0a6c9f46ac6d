package db

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS appointments").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, EnsureSchema(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaWrapsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("permission denied")
	mock.ExpectExec("CREATE TABLE").WillReturnError(boom)

	err = EnsureSchema(context.Background(), mock)
	assert.ErrorIs(t, err, boom)
}

func TestSchemaDeclaresBookingUniqueness(t *testing.T) {
	assert.Contains(t, schema, "appointments_active_window")
	assert.Contains(t, schema, "WHERE status <> 'cancelled'")
}

func TestPoolConfigOptions(t *testing.T) {
	cfg, err := poolConfig("postgres://clinic:secret@db:5432/calendar",
		WithMaxConns(2), WithApplicationName("calendarctl"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)
	assert.Equal(t, "calendarctl", cfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "UTC", cfg.ConnConfig.RuntimeParams["timezone"])
	assert.Equal(t, "calendar", cfg.ConnConfig.Database)
}

func TestPoolConfigRejectsBadDSN(t *testing.T) {
	_, err := poolConfig("postgres://%zz")
	assert.Error(t, err)
}
