package store

import (
	"context"

	"github.com/wuwenbin0122/evalboard/internal/models"
)

// ConversationRemote is the durable home of conversation history.
type ConversationRemote interface {
	LoadConversation(ctx context.Context, projectID string) (models.Conversation, error)
	AppendMessages(ctx context.Context, projectID, sessionID string, messages []models.Message) error
	ClearConversation(ctx context.Context, projectID string) error
}

type AssistantRequest struct {
	ProjectID string
	SessionID string
	History   []models.Message
	Content   string
}

type AssistantReply struct {
	Message   models.Message
	SessionID string
}

// Assistant produces the reply to a user message.
type Assistant interface {
	Reply(ctx context.Context, req AssistantRequest) (AssistantReply, error)
}

type QuestionRemote interface {
	ListQuestions(ctx context.Context, projectID string) ([]models.Question, error)
	CreateQuestion(ctx context.Context, q models.Question) (models.Question, error)
	UpdateQuestion(ctx context.Context, q models.Question) (models.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
}

type CommunicationRemote interface {
	ListCommunications(ctx context.Context, projectID string) ([]models.Communication, error)
	CreateCommunication(ctx context.Context, c models.Communication) (models.Communication, error)
	UpdateCommunication(ctx context.Context, c models.Communication) (models.Communication, error)
	DeleteCommunication(ctx context.Context, id string) error
}

type NotificationRemote interface {
	ListNotifications(ctx context.Context, projectID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) (models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, projectID string) error
}
