package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/dinear/service-api/internal/dish/entity"
)

var ErrNotFound = errors.New("dish not found")

const dishColumns = `id, owner_id, name, plate_size, thumbnail_url, model_url, qr_payload_url,
	image_key, thumbnail_key, created_at, updated_at`

// DishRepo is the repository implementation for dishes backed by PostgreSQL.
type DishRepo struct {
	db *sqlx.DB
}

func NewDishRepo(db *sqlx.DB) *DishRepo { return &DishRepo{db: db} }

// Insert writes d and fills in the timestamps assigned by the database.
func (r *DishRepo) Insert(ctx context.Context, d *entity.Dish) error {
	const q = `INSERT INTO dishes (id, owner_id, name, plate_size, thumbnail_url, model_url,
		qr_payload_url, image_key, thumbnail_key)
		VALUES (:id, :owner_id, :name, :plate_size, :thumbnail_url, :model_url,
		:qr_payload_url, :image_key, :thumbnail_key)
		RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, d)
	if err != nil {
		return fmt.Errorf("insert dish: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("insert dish: %w", err)
		}
		return errors.New("insert dish: no row returned")
	}
	return rows.Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *DishRepo) GetByID(ctx context.Context, id string) (*entity.Dish, error) {
	var d entity.Dish
	if err := r.db.GetContext(ctx, &d, `SELECT `+dishColumns+` FROM dishes WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get dish: %w", err)
	}
	return &d, nil
}

// ListByOwner returns one page of the owner's dishes, newest first.
func (r *DishRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]entity.Dish, error) {
	const q = `SELECT ` + dishColumns + ` FROM dishes WHERE owner_id=$1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	out := []entity.Dish{}
	if err := r.db.SelectContext(ctx, &out, q, ownerID, limit, offset); err != nil {
		return nil, fmt.Errorf("list dishes: %w", err)
	}
	return out, nil
}

func (r *DishRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM dishes WHERE owner_id=$1`, ownerID); err != nil {
		return 0, fmt.Errorf("count dishes: %w", err)
	}
	return n, nil
}

// Update writes the mutable fields. The owner is part of the predicate so a
// row that changed hands in between is reported as ErrNotFound.
func (r *DishRepo) Update(ctx context.Context, d *entity.Dish) error {
	const q = `UPDATE dishes SET name=$3, plate_size=$4, thumbnail_url=$5, model_url=$6,
		image_key=$7, thumbnail_key=$8, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
		RETURNING updated_at`
	err := r.db.GetContext(ctx, &d.UpdatedAt, q, d.ID, d.OwnerID, d.Name, d.PlateSize,
		d.ThumbnailURL, d.ModelURL, d.ImageKey, d.ThumbnailKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update dish: %w", err)
	}
	return nil
}

// Delete removes the row if ownerID still owns it.
func (r *DishRepo) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dishes WHERE id=$1 AND owner_id=$2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete dish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete dish: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
