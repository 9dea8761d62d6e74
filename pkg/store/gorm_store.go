package store

import (
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"thinkora/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &CourseModel{}, &ChatMessageModel{}, &KnowledgeModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "username", "password_hash", "role", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasUsername checks if username exists.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// DeleteUser removes a user together with owned courses and chat messages.
// The FK constraints cascade on Postgres; the explicit deletes keep the same
// semantics on databases migrated without them.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&CourseModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ChatMessageModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&UserModel{}, "id = ?", id).Error
	})
}

// SaveCourse stores or updates a course.
func (s *GormStore) SaveCourse(c domain.Course) error {
	model := courseToModel(c)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"course_name", "credits", "letter_grade", "semester_year", "updated_at"}),
	}).Create(&model).Error
}

// ListCoursesByOwner returns the user's courses ordered by course name.
func (s *GormStore) ListCoursesByOwner(userID string) ([]domain.Course, error) {
	var models []CourseModel
	if err := s.db.Where("user_id = ?", userID).Order("course_name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Course, 0, len(models))
	for _, m := range models {
		res = append(res, courseFromModel(m))
	}
	return res, nil
}

// GetCourse retrieves a course.
func (s *GormStore) GetCourse(id string) (domain.Course, bool, error) {
	var model CourseModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Course{}, false, nil
		}
		return domain.Course{}, false, err
	}
	return courseFromModel(model), true, nil
}

// DeleteCourse removes a course.
func (s *GormStore) DeleteCourse(id string) error {
	return s.db.Delete(&CourseModel{}, "id = ?", id).Error
}

// AppendChatMessage records a chat message.
func (s *GormStore) AppendChatMessage(msg domain.ChatMessage) error {
	model := chatMessageToModel(msg)
	return s.db.Create(&model).Error
}

// ListChatMessagesByUser returns the user's messages ordered by creation time.
func (s *GormStore) ListChatMessagesByUser(userID string, limit int) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	tx := s.db.Where("user_id = ?", userID).Order("created_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ChatMessage, 0, len(models))
	for _, m := range models {
		res = append(res, chatMessageFromModel(m))
	}
	return res, nil
}

// GetKnowledgeByQuestion performs a case-insensitive exact lookup.
func (s *GormStore) GetKnowledgeByQuestion(question string) (domain.KnowledgeEntry, bool, error) {
	var model KnowledgeModel
	err := s.db.Where("LOWER(question) = ?", strings.ToLower(question)).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.KnowledgeEntry{}, false, nil
		}
		return domain.KnowledgeEntry{}, false, err
	}
	return knowledgeFromModel(model), true, nil
}

// FindKnowledgeContaining returns the oldest entry whose stored question
// contains the input as a case-insensitive substring.
func (s *GormStore) FindKnowledgeContaining(input string) (domain.KnowledgeEntry, bool, error) {
	var model KnowledgeModel
	pattern := "%" + escapeLike(strings.ToLower(input)) + "%"
	err := s.db.
		Where("LOWER(question) LIKE ?", pattern).
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.KnowledgeEntry{}, false, nil
		}
		return domain.KnowledgeEntry{}, false, err
	}
	return knowledgeFromModel(model), true, nil
}

// CreateKnowledgeIfAbsent inserts the entry unless the question already
// exists. A losing concurrent insert reports created=false, not an error.
func (s *GormStore) CreateKnowledgeIfAbsent(e domain.KnowledgeEntry) (bool, error) {
	model := knowledgeToModel(e)
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "question"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListKnowledge returns entries ordered by creation time.
func (s *GormStore) ListKnowledge(verifiedOnly bool) ([]domain.KnowledgeEntry, error) {
	var models []KnowledgeModel
	tx := s.db.Order("created_at ASC")
	if verifiedOnly {
		tx = tx.Where("is_verified = ?", true)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.KnowledgeEntry, 0, len(models))
	for _, m := range models {
		res = append(res, knowledgeFromModel(m))
	}
	return res, nil
}

// GetKnowledgeByID returns an entry by ID.
func (s *GormStore) GetKnowledgeByID(id string) (domain.KnowledgeEntry, bool, error) {
	var model KnowledgeModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.KnowledgeEntry{}, false, nil
		}
		return domain.KnowledgeEntry{}, false, err
	}
	return knowledgeFromModel(model), true, nil
}

// UpdateKnowledge replaces answer and verified flag for an entry.
func (s *GormStore) UpdateKnowledge(e domain.KnowledgeEntry) error {
	return s.db.Model(&KnowledgeModel{}).
		Where("id = ?", e.ID).
		Updates(map[string]any{
			"answer":      e.Answer,
			"is_verified": e.IsVerified,
		}).Error
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func courseToModel(c domain.Course) CourseModel {
	return CourseModel{
		ID:           c.ID,
		UserID:       c.UserID,
		CourseName:   c.CourseName,
		Credits:      c.Credits,
		LetterGrade:  c.LetterGrade,
		SemesterYear: c.SemesterYear,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func courseFromModel(m CourseModel) domain.Course {
	return domain.Course{
		ID:           m.ID,
		UserID:       m.UserID,
		CourseName:   m.CourseName,
		Credits:      m.Credits,
		LetterGrade:  m.LetterGrade,
		SemesterYear: m.SemesterYear,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func chatMessageToModel(msg domain.ChatMessage) ChatMessageModel {
	return ChatMessageModel{
		ID:             msg.ID,
		UserID:         msg.UserID,
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		Context:        msg.Context,
		Meta:           datatypes.JSON(msg.Meta),
		CreatedAt:      msg.CreatedAt,
	}
}

func chatMessageFromModel(m ChatMessageModel) domain.ChatMessage {
	return domain.ChatMessage{
		ID:             m.ID,
		UserID:         m.UserID,
		ConversationID: m.ConversationID,
		Role:           domain.MessageRole(m.Role),
		Content:        m.Content,
		Context:        m.Context,
		Meta:           []byte(m.Meta),
		CreatedAt:      m.CreatedAt,
	}
}

func knowledgeToModel(e domain.KnowledgeEntry) KnowledgeModel {
	return KnowledgeModel{
		ID:         e.ID,
		Question:   e.Question,
		Answer:     e.Answer,
		IsVerified: e.IsVerified,
		CreatedAt:  e.CreatedAt,
	}
}

func knowledgeFromModel(m KnowledgeModel) domain.KnowledgeEntry {
	return domain.KnowledgeEntry{
		ID:         m.ID,
		Question:   m.Question,
		Answer:     m.Answer,
		IsVerified: m.IsVerified,
		CreatedAt:  m.CreatedAt,
	}
}
