package domain

import "time"

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MaxExcerptLength bounds citation excerpts.
const MaxExcerptLength = 200

// Conversation groups the messages of one chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted conversation turn.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	Citations      []Citation `json:"citations,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ChatMessage is a message sent to the generation backend.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Citation points the user back at the chunk an answer drew on.
type Citation struct {
	SourceType  SourceType `json:"source_type"`
	Filename    string     `json:"filename"`
	Page        int        `json:"page,omitempty"`
	SheetName   string     `json:"sheet_name,omitempty"`
	CellRef     string     `json:"cell_ref,omitempty"`
	SlideNumber int        `json:"slide_number,omitempty"`
	RowNumber   int        `json:"row_number,omitempty"`
	Excerpt     string     `json:"excerpt"`
}

// CitationFor builds a citation from a retrieved chunk.
func CitationFor(r SearchResult) Citation {
	m := r.Metadata
	return Citation{
		SourceType:  m.FileType,
		Filename:    m.Filename,
		Page:        m.Page,
		SheetName:   m.SheetName,
		CellRef:     m.CellRef,
		SlideNumber: m.SlideNumber,
		RowNumber:   m.RowNumber,
		Excerpt:     TruncateMessage(r.Content, MaxExcerptLength),
	}
}

// ChatChunk is one event of a streamed answer.
type ChatChunk struct {
	Content   string     `json:"content"`
	IsFinal   bool       `json:"is_final"`
	Citations []Citation `json:"citations,omitempty"`
}

// GenerationDelta is one piece of output from the generation backend.
type GenerationDelta struct {
	Content string
	Done    bool
}

// GenerationOptions tunes a chat completion request.
type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}
