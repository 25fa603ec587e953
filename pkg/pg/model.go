package pg

import (
	"time"

	"gorm.io/gorm"
)

// Model is embedded by entities that are soft-deleted only.
type Model struct {
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
