package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/store"
)

// conversationDocument is the stored shape of one project's thread. Older
// documents carry the session under thread_id.
type conversationDocument struct {
	ProjectID string           `bson:"project_id"`
	SessionID string           `bson:"session_id,omitempty"`
	ThreadID  string           `bson:"thread_id,omitempty"`
	Messages  []models.Message `bson:"messages"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

func (d conversationDocument) toModel() models.Conversation {
	sessionID := d.SessionID
	if sessionID == "" {
		sessionID = d.ThreadID
	}

	messages := make([]models.Message, 0, len(d.Messages))
	for _, msg := range d.Messages {
		if msg.Valid() {
			messages = append(messages, msg)
		}
	}

	return models.Conversation{
		ProjectID: d.ProjectID,
		SessionID: sessionID,
		Messages:  messages,
		UpdatedAt: d.UpdatedAt,
	}
}

// ConversationRepository keeps one conversation document per project.
type ConversationRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

var _ store.ConversationRemote = (*ConversationRepository)(nil)

func NewConversationRepository(collection *mongo.Collection) *ConversationRepository {
	return &ConversationRepository{collection: collection, now: time.Now}
}

func (r *ConversationRepository) LoadConversation(ctx context.Context, projectID string) (models.Conversation, error) {
	var doc conversationDocument
	err := r.collection.FindOne(ctx, bson.M{"project_id": projectID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Conversation{ProjectID: projectID}, nil
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("mongo: load conversation: %w", err)
	}
	return doc.toModel(), nil
}

func (r *ConversationRepository) AppendMessages(ctx context.Context, projectID, sessionID string, messages []models.Message) error {
	if strings.TrimSpace(projectID) == "" {
		return fmt.Errorf("mongo: append messages: %w", store.ErrNoProject)
	}
	if len(messages) == 0 {
		return nil
	}

	set := bson.M{"updated_at": r.now().UTC()}
	if sessionID != "" {
		set["session_id"] = sessionID
	}

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"project_id": projectID},
		bson.M{
			"$push": bson.M{"messages": bson.M{"$each": messages}},
			"$set":  set,
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: append messages: %w", err)
	}
	return nil
}

func (r *ConversationRepository) ClearConversation(ctx context.Context, projectID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"project_id": projectID})
	if err != nil {
		return fmt.Errorf("mongo: clear conversation: %w", err)
	}
	return nil
}
