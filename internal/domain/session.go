package domain

// ConversationState is the serialisable state of a questionnaire tracker.
type ConversationState struct {
	Step      int
	Entities  EntitySet
	Complete  bool
	Submitted bool
}

// Session is the persisted record of one conversation.
type Session struct {
	PK           string
	SK           string
	SessionID    string
	Generation   int
	State        ConversationState
	Version      int
	LastActivity string
	TTL          int64
}

// TranscriptMessage is a single persisted transcript entry.
type TranscriptMessage struct {
	PK         string
	SK         string
	SessionID  string
	Generation int
	Role       string
	Content    string
	TTL        int64
}
