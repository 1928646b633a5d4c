package models

import (
	"time"

	"gorm.io/gorm"
)

type DifficultyLevel int

const (
	DifficultyEasiest DifficultyLevel = 1
	DifficultyMedium  DifficultyLevel = 3
	DifficultyHardest DifficultyLevel = 5
)

// Pool is a named bank of questions with an aggregate point value. Questions
// reference their pool; the pool never embeds them.
type Pool struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Title       string          `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string         `json:"description" gorm:"type:text"`
	Points      float64         `json:"points" gorm:"not null;default:1" validate:"min=0"`
	Difficulty  DifficultyLevel `json:"difficulty" gorm:"default:3" validate:"omitempty,min=1,max=5"`
	Context     string          `json:"context" gorm:"not null;index;size:99"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Computed fields (not stored)
	QuestionCount int `json:"question_count" gorm:"-"`
}

func (Pool) TableName() string {
	return "question_pools"
}
