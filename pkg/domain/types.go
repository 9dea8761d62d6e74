package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type MessageRole string

const (
	RoleSenderUser MessageRole = "user"
	RoleSenderAI   MessageRole = "ai"
)

// PendingAnswer is the placeholder stored for newly learned questions until
// an administrator curates them.
const PendingAnswer = "Pending Answer"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Course struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	CourseName   string    `json:"course_name"`
	Credits      float64   `json:"credits"`
	LetterGrade  string    `json:"letter_grade"`
	SemesterYear string    `json:"semester_year,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ChatMessage struct {
	ID             string      `json:"id"`
	UserID         string      `json:"-"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	Context        string      `json:"context"`
	Meta           []byte      `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
}

// KnowledgeEntry is a global question/answer pair shared across all users.
type KnowledgeEntry struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}
