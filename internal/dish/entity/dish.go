package entity

import "time"

// Dish is a row of the `dishes` table. The storage keys of its image are kept
// for cleanup and never serialized.
type Dish struct {
	ID           string    `db:"id" json:"id"`
	OwnerID      string    `db:"owner_id" json:"owner_id"`
	Name         string    `db:"name" json:"name"`
	PlateSize    string    `db:"plate_size" json:"plate_size"`
	ThumbnailURL string    `db:"thumbnail_url" json:"thumbnail_url"`
	ModelURL     string    `db:"model_url" json:"model_url"`
	QRPayloadURL *string   `db:"qr_payload_url" json:"qr_payload_url"`
	ImageKey     string    `db:"image_key" json:"-"`
	ThumbnailKey string    `db:"thumbnail_key" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
