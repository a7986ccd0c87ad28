package models

import "time"

// SpeakerRole identifies who produced a conversation turn.
type SpeakerRole string

const (
	SpeakerUser      SpeakerRole = "user"
	SpeakerAssistant SpeakerRole = "assistant"
	SpeakerTool      SpeakerRole = "tool"
	SpeakerSystem    SpeakerRole = "system"
)

// Turn is one utterance of a conversation, the raw material facts are
// extracted from.
type Turn struct {
	Role    SpeakerRole `json:"role"`
	Content string      `json:"content"`
}

// TurnBatch is the unit of asynchronous ingestion: a group of turns from one
// session, published to the ingestion topic by upstream chat services. The
// identity fields mirror the session descriptor so the consumer can resolve
// the owner the same way synchronous callers do.
type TurnBatch struct {
	BatchID      string                 `json:"batch_id"`
	Client       string                 `json:"client,omitempty"`
	SessionToken string                 `json:"session_token,omitempty"`
	OwnerID      string                 `json:"owner_id,omitempty"`
	Turns        []Turn                 `json:"turns"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreateTime   time.Time              `json:"create_time,omitempty"`
}
