package events

import "github.com/google/uuid"

const (
	// KindChatMessage identifies a user-facing transcript entry.
	KindChatMessage Kind = "chat.message"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "ai"
	SenderSystem    Sender = "system"
)

// ChatMessage is one entry of the user-facing conversation transcript.
type ChatMessage struct {
	Base
	ID     string
	Sender Sender
	Text   string
}

func (m ChatMessage) String() string { return m.Text }

func NewChatMessage(sender Sender, text string) ChatMessage {
	return ChatMessage{
		Base:   NewBase(KindChatMessage),
		ID:     uuid.NewString(),
		Sender: sender,
		Text:   text,
	}
}
