package gorm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/config"
	gormadapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm"
)

type truthRow struct {
	ID          uint     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID       string   `gorm:"column:run_id"`
	PVID        int64    `gorm:"column:pv_id"`
	HorizonHour int32    `gorm:"column:horizon_hour"`
	Value       *float64 `gorm:"column:value"`
}

func (truthRow) TableName() string { return "pv_truth" }

// setupMockAdapter opens gorm on a sqlmock connection using the mysql dialect.
func setupMockAdapter(t *testing.T) (*gormadapter.GormDBAdapter, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true, Logger: gormadapter.NewGormLogger("")})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "mysql"}, "mock_db")
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		assert.NoError(t, conn.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return conn, mock
}

func TestGormDBAdapter_ExecuteInsertUsesTableName(t *testing.T) {
	conn, mock := setupMockAdapter(t)
	v := 0.5
	rows := []truthRow{
		{RunID: "run-a", PVID: 1, HorizonHour: 0, Value: &v},
		{RunID: "run-a", PVID: 1, HorizonHour: 1},
	}

	mock.ExpectExec("INSERT INTO `pv_truth`").WillReturnResult(sqlmock.NewResult(1, 2))

	n, err := conn.ExecuteInsert(context.Background(), rows, "", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "mysql", conn.Type())
	assert.Equal(t, "mock_db", conn.Name())
}

func TestGormDBAdapter_ExecuteInsertError(t *testing.T) {
	conn, mock := setupMockAdapter(t)

	mock.ExpectExec("INSERT INTO `results`").WillReturnError(errors.New("disk full"))

	_, err := conn.ExecuteInsert(context.Background(), []truthRow{{RunID: "run-a"}}, "results", 0)
	assert.ErrorContains(t, err, "disk full")
}

func TestGormDBAdapter_CountWithQuery(t *testing.T) {
	conn, mock := setupMockAdapter(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `pv_truth` WHERE `pv_truth`.`run_id` = \\?").
		WithArgs("run-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := conn.Count(context.Background(), truthRow{}, map[string]interface{}{"run_id": "run-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestGormDBAdapter_ExecuteQueryResolvesSliceTable(t *testing.T) {
	conn, mock := setupMockAdapter(t)

	mock.ExpectQuery("SELECT \\* FROM `pv_truth` ORDER BY horizon_hour").
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "pv_id", "horizon_hour", "value"}).
			AddRow(1, "run-a", 7, 0, nil).
			AddRow(2, "run-a", 7, 1, 0.25))

	var got []truthRow
	require.NoError(t, conn.ExecuteQuery(context.Background(), &got, nil, "horizon_hour"))
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Value)
	require.NotNil(t, got[1].Value)
	assert.InDelta(t, 0.25, *got[1].Value, 1e-12)
}
