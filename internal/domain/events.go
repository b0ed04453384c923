package domain

import "time"

// Event types from client.
const (
	EventChat   = "chat"
	EventTyping = "typing"
	EventImage  = "image"
	EventFile   = "file"
)

// Event types to client.
const (
	EventHistory = "history"
)

// TimestampLayout is the display format for message timestamps.
// Server-side formatting only, not meant to be parsed back.
const TimestampLayout = "15:04 02/01/2006"

// FormatTimestamp renders a timestamp in local time for display.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// BaseEvent carries only the type discriminator of an inbound frame.
type BaseEvent struct {
	Type string `json:"type"`
}

// Client -> Server events

type ChatEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ImageEvent struct {
	Type  string `json:"type"`
	Image string `json:"image"` // data URL
}

type FileEvent struct {
	Type     string `json:"type"`
	File     string `json:"file"` // data URL
	Filename string `json:"filename"`
}

// Server -> Client events

type HistoryEntry struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Kind      string `json:"type"`
	Image     string `json:"image,omitempty"`
	File      string `json:"file,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Timestamp string `json:"timestamp"`
}

type HistoryBroadcast struct {
	Type     string         `json:"type"`
	Messages []HistoryEntry `json:"messages"`
}

type ChatBroadcast struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ImageBroadcast struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Image     string `json:"image"`
	Timestamp string `json:"timestamp"`
}

type FileBroadcast struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Filename  string `json:"filename"`
	FileURL   string `json:"file_url"`
	Timestamp string `json:"timestamp"`
}

type TypingBroadcast struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}
