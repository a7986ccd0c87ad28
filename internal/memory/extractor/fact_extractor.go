package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DrJLabs/Forgetful-sub001/internal/llm"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

const extractFactsPrompt = `You are a Personal Information Organizer, specialized in accurately storing facts, user memories, and preferences. Your primary role is to extract relevant pieces of information from conversations and organize them into distinct, manageable facts.

Types of information to remember:
1. Personal preferences: likes, dislikes, and specific preferences in food, products, activities, and entertainment.
2. Personal details: names, relationships, and important dates.
3. Plans and intentions: upcoming events, trips, goals, and any plans the user has shared.
4. Activity and service preferences: dining, travel, hobbies, and other service preferences.
5. Health and wellness: dietary restrictions, fitness routines, and other wellness-related information.
6. Professional details: job titles, work habits, career goals, and other professional information.

Guidelines:
- Extract only facts stated in the conversation; do not infer or embellish.
- Each fact must be a short, self-contained statement about the user.
- Do not extract facts from the assistant's own suggestions, only from what the user confirms or states.
- If the conversation contains nothing worth remembering, return an empty list.

Return the facts in JSON format as shown below:
{"facts": ["fact 1", "fact 2"]}
`

// LLMFactExtractor implements FactExtractor on top of a chat model.
type LLMFactExtractor struct {
	llm llm.LLM
}

// NewLLMFactExtractor creates a new LLMFactExtractor.
func NewLLMFactExtractor(llm llm.LLM) *LLMFactExtractor {
	return &LLMFactExtractor{llm: llm}
}

// ExtractFacts asks the model for the candidate facts contained in the turns.
func (e *LLMFactExtractor) ExtractFacts(ctx context.Context, turns []models.Turn) ([]string, error) {
	conversation := conversationText(turns)
	if strings.TrimSpace(conversation) == "" {
		return nil, nil
	}

	llmResp, err := e.llm.GenerateContent(ctx, &models.GenerateRequest{
		System: extractFactsPrompt,
		Messages: []models.Turn{
			{Role: models.SpeakerUser, Content: fmt.Sprintf("Conversation:\n%s", conversation)},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract facts: %w", err)
	}

	var response struct {
		Facts []string `json:"facts"`
	}
	raw := stripCodeFence(llmResp.Text)
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fact extraction response: %w", err)
	}

	// Empty and whitespace-only candidates never reach reconciliation.
	facts := make([]string, 0, len(response.Facts))
	for _, fact := range response.Facts {
		if trimmed := strings.TrimSpace(fact); trimmed != "" {
			facts = append(facts, trimmed)
		}
	}
	return facts, nil
}
