package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DrJLabs/Forgetful-sub001/internal/llm"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

const classifyFactPrompt = `You are a smart memory manager which controls the memory of a system.
You can perform four operations: (1) add into the memory, (2) update the memory, (3) delete from the memory, and (4) no change.

Compare the new fact with the existing memory elements. Decide whether to:
- ADD: Add it to the memory as a new element
- UPDATE: Update an existing memory element
- DELETE: Delete an existing memory element
- NONE: Make no change (if the fact is already present or irrelevant)

There are specific guidelines to select which operation to perform:

1. **Add**: If the new fact contains information not present in the memory, then you have to add it.

2. **Update**: If the new fact contains information that is already present in the memory but the information is totally different, then you have to update it.
If the new fact conveys the same thing as an element present in the memory, then you have to keep the fact which has the most information.
Example (a) -- if the memory contains "User likes to play cricket" and the new fact is "Loves to play cricket with friends", then update the memory with the new fact.
Example (b) -- if the memory contains "Likes cheese pizza" and the new fact is "Loves cheese pizza", then you do not need to update it because they convey the same information.
Please keep in mind while updating you have to keep the same ID.
Please note to return the ID in the output from the input IDs only and do not generate any new ID.

3. **Delete**: If the new fact contains information that contradicts the information present in the memory, then you have to delete it.
Please note to return the ID in the output from the input IDs only and do not generate any new ID.

4. **No Change**: If the new fact contains information that is already present in the memory, then you do not need to make any changes.

Answer with a single JSON object of the form:
{"event": "ADD|UPDATE|DELETE|NONE", "id": "<existing id, required for UPDATE and DELETE>", "text": "<memory content, required for ADD and UPDATE>", "old_memory": "<previous content, for UPDATE only>"}
`

// memoryElement is the slimmed view of an existing fact shown to the model.
type memoryElement struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// LLMClassifier implements Classifier on top of a chat model.
type LLMClassifier struct {
	llm llm.LLM
}

// NewLLMClassifier creates a new LLMClassifier.
func NewLLMClassifier(llm llm.LLM) *LLMClassifier {
	return &LLMClassifier{llm: llm}
}

// Classify asks the model how the candidate relates to the similar facts and
// parses its answer into a Decision. The decision is raw classifier output:
// id validation against the similar set is the reconciler's job, not ours.
func (c *LLMClassifier) Classify(ctx context.Context, candidate string, similar []models.ScoredFact) (*models.Decision, error) {
	elements := make([]memoryElement, 0, len(similar))
	for _, sf := range similar {
		elements = append(elements, memoryElement{ID: sf.Fact.ID, Text: sf.Fact.Content})
	}
	memoryJSON, err := json.Marshal(elements)
	if err != nil {
		return nil, err
	}

	llmResp, err := c.llm.GenerateContent(ctx, &models.GenerateRequest{
		System: classifyFactPrompt,
		Messages: []models.Turn{
			{Role: models.SpeakerUser, Content: fmt.Sprintf("Existing Memory:\n%s\n\nNew Fact:\n%s", string(memoryJSON), candidate)},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to classify fact: %w", err)
	}

	var decision models.Decision
	raw := stripCodeFence(llmResp.Text)
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal classification response: %w", err)
	}

	decision.Event = strings.ToUpper(strings.TrimSpace(decision.Event))
	switch decision.Event {
	case models.EventAdd, models.EventUpdate, models.EventDelete, models.EventNone:
	default:
		return nil, fmt.Errorf("classifier returned unknown event %q", decision.Event)
	}
	if decision.Text == "" {
		decision.Text = candidate
	}
	return &decision, nil
}
