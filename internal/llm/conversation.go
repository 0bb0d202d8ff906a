package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Conversation keeps a system prompt plus a bounded message history and
// replays both on every request.
//
// client: The client used for completions
// systemPrompt: System prompt for the conversation context
// messages: History of messages in the conversation
// maxHistory: Maximum number of messages to keep in history
type Conversation struct {
	mu           sync.Mutex
	client       *Client
	systemPrompt string
	messages     []Message
	maxHistory   int
	createdAt    time.Time
	updatedAt    time.Time
}

// NewConversation creates a new conversation with the given client and system prompt
//
// maxHistory: Maximum number of messages to keep in history (default: 100)
//
// Example:
//
//	conv := llm.NewConversation(client, "You are a helpful tutor.", 50)
func NewConversation(client *Client, systemPrompt string, maxHistory int) *Conversation {
	if maxHistory <= 0 {
		maxHistory = 100
	}

	now := time.Now()
	return &Conversation{
		client:       client,
		systemPrompt: systemPrompt,
		messages:     make([]Message, 0),
		maxHistory:   maxHistory,
		createdAt:    now,
		updatedAt:    now,
	}
}

// NewConversationFromMessages creates a new conversation with predefined messages
func NewConversationFromMessages(client *Client, systemPrompt string, messages []Message, maxHistory int) *Conversation {
	conv := NewConversation(client, systemPrompt, maxHistory)
	for _, msg := range messages {
		conv.addMessage(msg)
	}
	return conv
}

// SendMessage sends a message in the conversation and gets a response
//
// Example:
//
//	response, err := conv.SendMessage(ctx, "Why does this work?", nil)
//	if err != nil {
//		log.Error("Error: %v", err)
//		return
//	}
func (c *Conversation) SendMessage(ctx context.Context, content string, opts *ChatCompletionOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.addMessage(Message{Role: RoleUser, Content: content})

	if opts == nil {
		opts = NewChatCompletionOptions()
	}
	// The client prepends opts.SystemPrompt; keep ours out of it to avoid a duplicate.
	callOpts := *opts
	callOpts.SystemPrompt = ""

	response, err := c.client.ChatCompletion(ctx, c.prepareMessages(), &callOpts)
	if err != nil {
		// drop the unanswered user turn
		c.messages = c.messages[:len(c.messages)-1]
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(response.Choices) == 0 {
		c.messages = c.messages[:len(c.messages)-1]
		return "", fmt.Errorf("no choices in response")
	}

	assistantContent := response.Choices[0].Message.Content
	c.addMessage(Message{Role: RoleAssistant, Content: assistantContent})
	c.updatedAt = time.Now()

	return assistantContent, nil
}

// GetHistory returns a copy of the conversation history
func (c *Conversation) GetHistory() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := make([]Message, len(c.messages))
	copy(history, c.messages)
	return history
}

// GetMessageCount returns the number of messages in the conversation
func (c *Conversation) GetMessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// addMessage adds a message to the history, maintaining max history limit
func (c *Conversation) addMessage(msg Message) {
	c.messages = append(c.messages, msg)

	if len(c.messages) > c.maxHistory {
		excess := len(c.messages) - c.maxHistory
		c.messages = c.messages[excess:]
	}
}

// prepareMessages prepares messages for the API, including system prompt
func (c *Conversation) prepareMessages() []Message {
	messages := make([]Message, 0, len(c.messages)+1)
	if c.systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: c.systemPrompt})
	}
	return append(messages, c.messages...)
}
