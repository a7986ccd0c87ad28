package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// FactExtractor distills a batch of conversation turns into candidate fact
// strings. An empty result is valid: not every conversation carries facts.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, turns []models.Turn) ([]string, error)
}

// Classifier decides how one candidate fact relates to the owner's existing
// memory: ADD, UPDATE, DELETE or NONE. The output is advisory text reasoning
// and must be validated against the supplied similar set before acting on it.
type Classifier interface {
	Classify(ctx context.Context, candidate string, similar []models.ScoredFact) (*models.Decision, error)
}

// RelationExtractor derives entity relation triples from a fact text.
type RelationExtractor interface {
	DeriveRelations(ctx context.Context, ownerID, text string) ([]models.Relation, error)
}

// conversationText flattens turns into the "role: content" transcript format
// the prompts expect.
func conversationText(turns []models.Turn) string {
	var sb strings.Builder
	for _, turn := range turns {
		sb.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
	}
	return sb.String()
}

// stripCodeFence removes a surrounding markdown code block from a model
// answer. Models occasionally fence their JSON even when asked not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		// Drop the language tag line (```json).
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
