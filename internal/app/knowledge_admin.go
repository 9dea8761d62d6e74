package app

import (
	"fmt"
	"strings"

	"thinkora/pkg/domain"
)

// ListKnowledge returns knowledge entries, optionally only verified ones.
func (a *App) ListKnowledge(verifiedOnly bool) ([]domain.KnowledgeEntry, error) {
	return a.store.ListKnowledge(verifiedOnly)
}

// CurateKnowledge sets the answer and verified flag on a learned question.
func (a *App) CurateKnowledge(id, answer string, verified bool) (domain.KnowledgeEntry, error) {
	entry, ok, err := a.store.GetKnowledgeByID(id)
	if err != nil {
		return domain.KnowledgeEntry{}, fmt.Errorf("fetch knowledge: %w", err)
	}
	if !ok {
		return domain.KnowledgeEntry{}, ErrKnowledgeNotFound
	}
	answer = strings.TrimSpace(answer)
	if answer != "" {
		entry.Answer = answer
	}
	entry.IsVerified = verified
	if err := a.store.UpdateKnowledge(entry); err != nil {
		return domain.KnowledgeEntry{}, fmt.Errorf("update knowledge: %w", err)
	}
	return entry, nil
}
