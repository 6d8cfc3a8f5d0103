package sentinel

import "context"

// Frontend abstracts the messaging channel (Discord, CLI, HTTP).
type Frontend interface {
	// Poll returns a channel of incoming messages. Blocks until ctx is cancelled.
	Poll(ctx context.Context) (<-chan IncomingMessage, error)
	// Send sends a message to a chat/channel, returns the message ID.
	Send(ctx context.Context, chatID string, text string) (string, error)
	// SendTyping shows a typing indicator.
	SendTyping(ctx context.Context, chatID string) error
}
