package assistant

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session owns an ordered, append-only assistant conversation.
type Session struct {
	SessionID string    `gorm:"column:session_id;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index:idx_assistant_sessions_user"`
	Title     string    `gorm:"column:title;size:255;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "assistant_sessions"
}

// Message is one turn in a session. Rows are append-only.
type Message struct {
	MessageID    string    `gorm:"column:message_id;primaryKey;size:190;not null"`
	SessionID    string    `gorm:"column:session_id;size:190;not null;index:idx_assistant_messages_session,priority:1"`
	Role         string    `gorm:"column:role;size:20;not null"`
	Content      string    `gorm:"column:content;type:text;not null"`
	MetadataJSON string    `gorm:"column:metadata_json;type:text;not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;index:idx_assistant_messages_session,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "assistant_messages"
}

// RetrievedChunkLog records one piece of evidence used in a turn.
type RetrievedChunkLog struct {
	ChunkLogID string    `gorm:"column:chunk_log_id;primaryKey;size:190;not null"`
	SessionID  string    `gorm:"column:session_id;size:190;not null;index:idx_assistant_chunks_session"`
	Source     string    `gorm:"column:source;size:50;not null"`
	Score      float64   `gorm:"column:score;not null"`
	ChunkText  string    `gorm:"column:chunk_text;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (RetrievedChunkLog) TableName() string {
	return "assistant_retrieved_chunk_logs"
}

// AdviceAudit is the system of record for one assistant turn: safety flags,
// retrieval count, confidence, model tag, and latency. Never mutated.
type AdviceAudit struct {
	AuditID           string    `gorm:"column:audit_id;primaryKey;size:190;not null"`
	SessionID         string    `gorm:"column:session_id;size:190;not null;index:idx_assistant_audits_session"`
	UserMessage       string    `gorm:"column:user_message;type:text;not null"`
	AssistantResponse string    `gorm:"column:assistant_response;type:text;not null"`
	SafetyFlagsJSON   string    `gorm:"column:safety_flags_json;type:text;not null;default:''"`
	RetrievalCount    int       `gorm:"column:retrieval_count;not null"`
	Confidence        float64   `gorm:"column:confidence;not null"`
	ModelName         string    `gorm:"column:model_name;size:64;not null"`
	LatencyMs         int64     `gorm:"column:latency_ms;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AdviceAudit) TableName() string {
	return "assistant_advice_audits"
}

// ExpertTip is curated evidence with a stored quality weight.
type ExpertTip struct {
	TipID         string  `gorm:"column:tip_id;primaryKey;size:190;not null"`
	Source        string  `gorm:"column:source;size:50;not null;default:''"`
	Title         string  `gorm:"column:title;size:255;not null"`
	Content       string  `gorm:"column:content;type:text;not null"`
	TagsJSON      string  `gorm:"column:tags_json;type:text;not null;default:''"`
	SourceQuality float64 `gorm:"column:source_quality;not null;default:0.7"`
	IsActive      bool    `gorm:"column:is_active;not null;default:true"`
}

// TableName provides the explicit table binding for GORM.
func (ExpertTip) TableName() string {
	return "assistant_expert_tips"
}

// ExpertPost is community expert content usable as lower-weight evidence.
type ExpertPost struct {
	PostID    string    `gorm:"column:post_id;primaryKey;size:190;not null"`
	AuthorID  string    `gorm:"column:author_id;size:190;not null;default:''"`
	Title     string    `gorm:"column:title;size:255;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ExpertPost) TableName() string {
	return "expert_posts"
}
