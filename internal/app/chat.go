package app

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"thinkora/internal/gpa"
	"thinkora/internal/knowledge"
	"thinkora/pkg/domain"
	"thinkora/pkg/store"
)

// gradePairPattern extracts "A=3" style grade/credit pairs from chat text.
var gradePairPattern = regexp.MustCompile(`(?i)([A-F])\s*=\s*(\d+(?:\.\d+)?)`)

// TurnResult is the outcome of one chat exchange.
type TurnResult struct {
	Reply     string
	SessionID string
	MessageID string
	Timestamp time.Time
}

// ChatTurn handles one request/response exchange: it persists the inbound
// message, resolves a reply, persists the reply, and returns it.
//
// The user-message write is not rolled back when a later step fails; the
// turn surfaces the error and leaves the inbound message behind.
func (a *App) ChatTurn(user *domain.User, sessionID, message, context string) (TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	if strings.TrimSpace(context) == "" {
		context = defaultChatContext
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	principal := domain.User{}
	if user != nil {
		principal = *user
	} else {
		var err error
		principal, err = a.resolveGuest(sessionID)
		if err != nil {
			return TurnResult{}, err
		}
	}

	if err := a.store.AppendChatMessage(domain.ChatMessage{
		ID:             store.NewID(),
		UserID:         principal.ID,
		ConversationID: sessionID,
		Role:           domain.RoleSenderUser,
		Content:        message,
		Context:        context,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return TurnResult{}, fmt.Errorf("persist user message: %w", err)
	}

	reply, meta, err := a.resolveReply(message)
	if err != nil {
		return TurnResult{}, err
	}

	aiMsg := domain.ChatMessage{
		ID:             store.NewID(),
		UserID:         principal.ID,
		ConversationID: sessionID,
		Role:           domain.RoleSenderAI,
		Content:        reply,
		Context:        context,
		Meta:           meta,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.AppendChatMessage(aiMsg); err != nil {
		return TurnResult{}, fmt.Errorf("persist ai message: %w", err)
	}

	return TurnResult{
		Reply:     reply,
		SessionID: sessionID,
		MessageID: aiMsg.ID,
		Timestamp: aiMsg.CreatedAt,
	}, nil
}

// resolveReply picks the reply text for a message. GPA-intent messages are
// answered inline (or redirected to the calculator) without touching the
// knowledge base; everything else goes through the resolver.
func (a *App) resolveReply(message string) (string, []byte, error) {
	if knowledge.MentionsGPA(message) {
		if reply, meta, ok := inlineGPAReply(message); ok {
			return reply, meta, nil
		}
		return knowledge.GPARedirectReply, nil, nil
	}
	res, err := a.resolver.Resolve(message)
	if err != nil {
		return "", nil, fmt.Errorf("resolve reply: %w", err)
	}
	return res.Answer, nil, nil
}

// inlineGPAReply computes a GPA from "A=3, B=4" pairs found in the message.
func inlineGPAReply(message string) (string, []byte, bool) {
	matches := gradePairPattern.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return "", nil, false
	}
	grades := make([]string, 0, len(matches))
	credits := make([]float64, 0, len(matches))
	pairs := make([]string, 0, len(matches))
	for _, m := range matches {
		credit, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		grade := strings.ToUpper(m[1])
		grades = append(grades, grade)
		credits = append(credits, credit)
		pairs = append(pairs, fmt.Sprintf("%s=%g", grade, credit))
	}
	res, err := gpa.Compute(grades, credits)
	if err != nil {
		return "I couldn't calculate that. Use the format: A=5, B=4, C=3, D=2, E=1, F=0", nil, true
	}

	meta, _ := json.Marshal(map[string]any{
		"gpa":            res.GPA,
		"total_credits":  res.TotalCredits,
		"total_points":   res.TotalPoints,
		"classification": res.Classification,
		"scale":          gpa.Scale,
	})
	reply := fmt.Sprintf(
		"GPA Calculation (%s scale)\nGrades: %s\nTotal Credits: %g\nGPA: %.2f/%s\nClassification: %s\nUse the GPA Calculator tool for more courses!",
		gpa.Scale, strings.Join(pairs, ", "), res.TotalCredits, res.GPA, gpa.Scale, res.Classification,
	)
	return reply, meta, true
}

// History returns up to the configured limit of the principal's chat
// messages in creation order. A caller with neither a valid token nor a
// known session resolves to no principal and gets an empty history.
func (a *App) History(user *domain.User, sessionID string) ([]domain.ChatMessage, error) {
	var principalID string
	switch {
	case user != nil:
		principalID = user.ID
	case strings.TrimSpace(sessionID) != "":
		guest, ok, err := a.store.GetUserByUsername(store.GuestUsername(sessionID))
		if err != nil {
			return nil, fmt.Errorf("fetch guest: %w", err)
		}
		if !ok {
			return []domain.ChatMessage{}, nil
		}
		principalID = guest.ID
	default:
		return []domain.ChatMessage{}, nil
	}
	return a.store.ListChatMessagesByUser(principalID, a.historyLimit)
}
