// Package knowledge resolves free-text questions against the stored
// knowledge base and learns the ones it cannot answer.
package knowledge

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"thinkora/pkg/domain"
	"thinkora/pkg/store"
)

const (
	// containmentMinLen gates the substring scan: very short inputs match
	// almost everything, so they only get the exact path.
	containmentMinLen = 10

	// GPARedirectReply points the user at the calculator instead of learning
	// calculator questions into the knowledge base.
	GPARedirectReply = "For GPA questions, use the GPA Calculator: send grades like 'Calculate GPA: A=3, B=4, C=2' or POST /calculate-gpa/."

	// LearningReply is the fallback for novel questions.
	LearningReply = "I'm still learning about that. Your question has been noted and an answer will be added soon."
)

// Resolver answers questions from the knowledge base.
type Resolver struct {
	store store.Store
}

// NewResolver builds a resolver over the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Result is the outcome of a resolution.
type Result struct {
	Answer  string
	Matched bool
}

// Resolve finds an answer for the question: exact case-insensitive match
// first, then containment (a stored question containing the input), then a
// canned fallback. Unmatched non-GPA questions are recorded with a pending
// answer so an administrator can curate them; this is the only write.
func (r *Resolver) Resolve(question string) (Result, error) {
	question = strings.TrimSpace(question)

	entry, ok, err := r.store.GetKnowledgeByQuestion(question)
	if err != nil {
		return Result{}, fmt.Errorf("exact lookup: %w", err)
	}
	if ok {
		return Result{Answer: entry.Answer, Matched: true}, nil
	}

	if len(question) > containmentMinLen {
		entry, ok, err = r.store.FindKnowledgeContaining(question)
		if err != nil {
			return Result{}, fmt.Errorf("containment lookup: %w", err)
		}
		if ok {
			return Result{Answer: entry.Answer, Matched: true}, nil
		}
	}

	if MentionsGPA(question) {
		return Result{Answer: GPARedirectReply}, nil
	}

	created, err := r.store.CreateKnowledgeIfAbsent(domain.KnowledgeEntry{
		ID:        store.NewID(),
		Question:  question,
		Answer:    domain.PendingAnswer,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("learn question: %w", err)
	}
	if created {
		slog.Info("knowledge question learned", "question", question)
	}
	return Result{Answer: LearningReply}, nil
}

// MentionsGPA reports whether the text refers to GPA or CGPA.
func MentionsGPA(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "gpa")
}
