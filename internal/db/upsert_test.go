package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var districtCfg = UpsertConfig{
	Table:        "city_districts",
	Columns:      []string{"id", "city", "name", "latitude", "longitude", "radius_m"},
	ConflictKeys: []string{"city", "name"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, districtCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_Validation(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "t", ConflictKeys: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "t", Columns: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_city_districts"}, districtCfg.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "city_districts" .* ON CONFLICT \("city", "name"\) DO UPDATE SET "id" = EXCLUDED."id"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{
		{"d1", "mumbai", "Andheri", 19.11, 72.84, 5000},
		{"d2", "mumbai", "Bandra", 19.06, 72.83, 5000},
	}
	n, err := BulkUpsert(context.Background(), mock, districtCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_city_districts"}, districtCfg.Columns).
		WillReturnError(errors.New("copy broke"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, districtCfg, [][]any{{"d1", "mumbai", "Andheri", 0.0, 0.0, 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"leads"`, sanitizeTable("leads"))
	assert.Equal(t, `"public"."leads"`, sanitizeTable("public.leads"))
	assert.Equal(t, "_tmp_upsert_public_leads", TempTableName("public.leads"))
}

func TestNonKeyColumns(t *testing.T) {
	assert.Equal(t, []string{"id", "latitude", "longitude", "radius_m"},
		nonKeyColumns(districtCfg.Columns, districtCfg.ConflictKeys))
	assert.Nil(t, nonKeyColumns([]string{"a"}, []string{"a"}))
	assert.Equal(t, `"id", "name"`, quoteAndJoin([]string{"id", "name"}))
}
