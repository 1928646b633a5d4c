package models

import (
	"time"
)

type PartKind string

const (
	PartManual PartKind = "manual"
	PartDraw   PartKind = "draw"
)

// Part is one section of an assessment. A manual part carries an authored
// list of question picks; a draw part carries pool draw specs. A part owns
// its picks and draws but never the questions they reference.
type Part struct {
	ID           uint     `json:"id" gorm:"primaryKey"`
	AssessmentID uint     `json:"assessment_id" gorm:"not null;index"`
	Kind         PartKind `json:"kind" gorm:"not null;index" validate:"required,oneof=manual draw"`
	Title        string   `json:"title" gorm:"size:200"`
	Presentation *string  `json:"presentation" gorm:"type:text"`
	Position     int      `json:"position" gorm:"not null;default:0"`

	// Manual parts only: present the authored picks in a per-submission
	// seeded order instead of the authored order.
	Randomize bool `json:"randomize"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Picks []PartPick     `json:"picks,omitempty" gorm:"foreignKey:PartID"`
	Draws []PoolDrawSpec `json:"draws,omitempty" gorm:"foreignKey:PartID"`
}

// PartPick is one authored question reference inside a manual part. PoolID
// records which pool the question was picked from, so draw parts on the same
// pool can exclude it.
type PartPick struct {
	ID         uint  `json:"id" gorm:"primaryKey"`
	PartID     uint  `json:"part_id" gorm:"not null;index"`
	QuestionID uint  `json:"question_id" gorm:"not null;index"`
	PoolID     *uint `json:"pool_id" gorm:"index"`
	Position   int   `json:"position" gorm:"not null;default:0"`
}

// PoolDrawSpec asks for Count distinct questions drawn from PoolID.
type PoolDrawSpec struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	PartID   uint `json:"part_id" gorm:"not null;index"`
	PoolID   uint `json:"pool_id" gorm:"not null;index"`
	Count    int  `json:"count" gorm:"not null" validate:"required,min=1"`
	Position int  `json:"position" gorm:"not null;default:0"`
}

func (Part) TableName() string {
	return "assessment_parts"
}

func (PartPick) TableName() string {
	return "part_picks"
}

func (PoolDrawSpec) TableName() string {
	return "part_draws"
}
