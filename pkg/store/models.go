package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Username     string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type CourseModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	User         UserModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CourseName   string `gorm:"not null"`
	Credits      float64 `gorm:"not null"`
	LetterGrade  string `gorm:"not null"`
	SemesterYear string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type ChatMessageModel struct {
	ID             string    `gorm:"primaryKey"`
	UserID         string    `gorm:"not null;index"`
	User           UserModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ConversationID string    `gorm:"not null;index"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"not null"`
	Context        string    `gorm:"not null;default:general"`
	Meta           datatypes.JSON
	CreatedAt      time.Time `gorm:"not null;index"`
}

type KnowledgeModel struct {
	ID         string    `gorm:"primaryKey"`
	Question   string    `gorm:"uniqueIndex;not null"`
	Answer     string    `gorm:"not null"`
	IsVerified bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"not null"`
}
