package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zapabug/madtrips-sub000/errors"
)

func TestSeedStoreListQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pubkey, added_at FROM seeds").
		WillReturnError(errors.New("disk I/O error"))

	seeds := NewSeedStore(db, zap.NewNop().Sugar())
	_, err = seeds.List(context.Background())
	assert.ErrorContains(t, err, "failed to list seeds")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedStoreAddExecFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO seeds").
		WillReturnError(errors.New("database is locked"))

	seeds := NewSeedStore(db, zap.NewNop().Sugar())
	err = seeds.Add(context.Background(), hexSeed)
	assert.ErrorContains(t, err, "failed to add seed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
