package repo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/dinear/service-api/internal/dish/entity"
)

var columns = []string{"id", "owner_id", "name", "plate_size", "thumbnail_url", "model_url",
	"qr_payload_url", "image_key", "thumbnail_key", "created_at", "updated_at"}

func newMock(t *testing.T) (*DishRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDishRepo(sqlx.NewDb(db, "postgres")), mock
}

func TestInsert(t *testing.T) {
	r, mock := newMock(t)
	now := time.Now().UTC().Truncate(time.Second)
	qr := "data:image/png;base64,xx"
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO dishes")).
		WithArgs("1", "u1", "Ramen", "small", "http://t/x-thumb.jpg", "http://t/x.png", qr, "x.png", "x-thumb.jpg").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	d := &entity.Dish{
		ID: "1", OwnerID: "u1", Name: "Ramen", PlateSize: "small",
		ThumbnailURL: "http://t/x-thumb.jpg", ModelURL: "http://t/x.png", QRPayloadURL: &qr,
		ImageKey: "x.png", ThumbnailKey: "x-thumb.jpg",
	}
	require.NoError(t, r.Insert(context.Background(), d))
	assert.Equal(t, now, d.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID(t *testing.T) {
	r, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM dishes WHERE id=$1")).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("1", "u1", "Ramen", "small", "t", "m", nil, "x.png", "x-thumb.jpg", now, now))

	d, err := r.GetByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "u1", d.OwnerID)
	assert.Nil(t, d.QRPayloadURL)
	assert.Equal(t, "x.png", d.ImageKey)
}

func TestGetByID_NotFound(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery("FROM dishes").WithArgs("2").WillReturnRows(sqlmock.NewRows(columns))

	_, err := r.GetByID(context.Background(), "2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByOwner(t *testing.T) {
	r, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_id=$1")+`\s+`+regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3")).
		WithArgs("u1", 20, 40).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("2", "u1", "B", "large", "t", "m", nil, "", "", now, now).
			AddRow("1", "u1", "A", "small", "t", "m", nil, "", "", now, now))

	out, err := r.ListByOwner(context.Background(), "u1", 20, 40)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "2", out[0].ID)
}

func TestCountByOwner(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM dishes WHERE owner_id=$1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := r.CountByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestUpdate_OwnerPredicate(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id=$1 AND owner_id=$2")).
		WithArgs("1", "u1", "New", "medium", "t", "m", "k", "kt").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := r.Update(context.Background(), &entity.Dish{
		ID: "1", OwnerID: "u1", Name: "New", PlateSize: "medium",
		ThumbnailURL: "t", ModelURL: "m", ImageKey: "k", ThumbnailKey: "kt",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM dishes WHERE id=$1 AND owner_id=$2")).
		WithArgs("1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM dishes").
		WithArgs("1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.Delete(context.Background(), "1", "u1"))
	assert.ErrorIs(t, r.Delete(context.Background(), "1", "u1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
