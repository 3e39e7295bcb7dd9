package models

// Timestamps are unix milliseconds.

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    int64
	UpdatedAt    int64
	SessionCount int
}

type ChatSession struct {
	ID                 string
	UserID             string
	Topic              string
	MemoryPrompt       string
	LastSummarizeIndex int
	ClearContextIndex  *int
	MaskConfig         string
	TokenCount         int
	WordCount          int
	CharCount          int
	LastUpdate         int64
	CreatedAt          int64
	MessageCount       int
	Messages           []ChatMessage
}

type ChatMessage struct {
	ID            string
	SessionID     string
	Seq           int64
	Role          string
	Content       string
	Model         string
	Date          string
	Tools         string
	AudioURL      string
	IsMcpResponse bool
	CreatedAt     int64
}

type APIKey struct {
	ID           string
	Provider     string
	Name         string
	EncryptedKey string
	BaseURL      string
	Priority     int
	IsActive     bool
	CreatedAt    int64
	UpdatedAt    int64
}
