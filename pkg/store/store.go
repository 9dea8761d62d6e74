package store

import "thinkora/pkg/domain"

// Store defines persistence operations for users, courses, chat messages,
// and the shared knowledge base.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	HasUsername(username string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	DeleteUser(id string) error

	// courses
	SaveCourse(domain.Course) error
	ListCoursesByOwner(userID string) ([]domain.Course, error)
	GetCourse(id string) (domain.Course, bool, error)
	DeleteCourse(id string) error

	// chat
	AppendChatMessage(domain.ChatMessage) error
	ListChatMessagesByUser(userID string, limit int) ([]domain.ChatMessage, error)

	// knowledge base
	GetKnowledgeByQuestion(question string) (domain.KnowledgeEntry, bool, error)
	FindKnowledgeContaining(input string) (domain.KnowledgeEntry, bool, error)
	CreateKnowledgeIfAbsent(domain.KnowledgeEntry) (created bool, err error)
	ListKnowledge(verifiedOnly bool) ([]domain.KnowledgeEntry, error)
	GetKnowledgeByID(id string) (domain.KnowledgeEntry, bool, error)
	UpdateKnowledge(domain.KnowledgeEntry) error
}
