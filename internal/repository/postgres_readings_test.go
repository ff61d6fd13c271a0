package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/models"
)

func TestInsertReading(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresReadingsRepo(db, zap.NewNop())

	temp := 38.5
	iaq := 52.0
	mock.ExpectQuery(`INSERT INTO readings`).
		WithArgs("pig-cam-01", temp, nil, nil, nil, iaq, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := repo.InsertReading(context.Background(), &models.Reading{
		DeviceID: "pig-cam-01",
		TempC:    &temp,
		IAQ:      &iaq,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReading_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresReadingsRepo(db, zap.NewNop())

	mock.ExpectQuery(`INSERT INTO readings`).WillReturnError(errors.New("readings table missing"))

	_, err = repo.InsertReading(context.Background(), &models.Reading{DeviceID: "pig-cam-01"})
	assert.Error(t, err)
}

func TestPurgeOldReadings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresReadingsRepo(db, zap.NewNop())

	mock.ExpectExec(`SELECT purge_old_readings\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.PurgeOldReadings(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
