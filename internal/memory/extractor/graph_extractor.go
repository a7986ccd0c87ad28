package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DrJLabs/Forgetful-sub001/internal/llm"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

const deriveRelationsPrompt = `You are an advanced algorithm designed to extract structured information from text to construct knowledge graphs. Your goal is to capture comprehensive and accurate information. Follow these key principles:

1. Extract only explicitly stated information from the text.
2. Establish relationships among the entities provided.
3. Use "USER" as the source entity for any self-references (e.g., "I," "me," "my," etc.) in user messages.

Relationships:
    - Use consistent, general, and timeless relationship types.
    - Example: Prefer "professor" over "became_professor."
    - Relationships should only be established among the entities explicitly mentioned in the text.

Entity Consistency:
    - Ensure that relationships are coherent and logically align with the context of the message.
    - Maintain consistent naming for entities across the extracted data.

Answer in JSON format as shown below:
{"relations": [{"source": "entity", "relationship": "label", "target": "entity"}]}
`

// LLMRelationExtractor implements RelationExtractor on top of a chat model.
type LLMRelationExtractor struct {
	llm llm.LLM
}

// NewLLMRelationExtractor creates a new LLMRelationExtractor.
func NewLLMRelationExtractor(llm llm.LLM) *LLMRelationExtractor {
	return &LLMRelationExtractor{llm: llm}
}

// DeriveRelations extracts relation triples from one fact text. The "USER"
// placeholder the prompt mandates for self-references is rewritten to the
// owner id so graphs of different owners never share a node name by accident.
func (e *LLMRelationExtractor) DeriveRelations(ctx context.Context, ownerID, text string) ([]models.Relation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	llmResp, err := e.llm.GenerateContent(ctx, &models.GenerateRequest{
		System: deriveRelationsPrompt,
		Messages: []models.Turn{
			{Role: models.SpeakerUser, Content: fmt.Sprintf("Text:\n%s", text)},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to derive relations: %w", err)
	}

	var response struct {
		Relations []models.Relation `json:"relations"`
	}
	raw := stripCodeFence(llmResp.Text)
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relation response: %w", err)
	}

	relations := make([]models.Relation, 0, len(response.Relations))
	for _, rel := range response.Relations {
		if rel.Source == "" || rel.Relationship == "" || rel.Target == "" {
			continue
		}
		rel.OwnerID = ownerID
		if strings.EqualFold(rel.Source, "USER") {
			rel.Source = ownerID
		}
		if strings.EqualFold(rel.Target, "USER") {
			rel.Target = ownerID
		}
		relations = append(relations, rel)
	}
	return relations, nil
}
