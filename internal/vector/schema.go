package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// ClassNameForChat maps a chat id to its own Weaviate class. One class per
// chat keeps the isolation invariant structural: a query against one chat
// physically cannot see another chat's vectors. Hashing keeps arbitrary chat
// ids (negative numbers, unicode) inside GraphQL's class-name alphabet.
func ClassNameForChat(chatID string) string {
	sum := sha256.Sum256([]byte(chatID))
	return "Chat" + hex.EncodeToString(sum[:12])
}

func chatClassProperties() []*models.Property {
	return []*models.Property{
		{
			Name:     "text",
			DataType: []string{"text"},
		},
		{
			Name:     "chatId",
			DataType: []string{"string"}, // exact match
		},
		{
			Name:     "messageId",
			DataType: []string{"string"},
		},
		{
			Name:     "chatUsername",
			DataType: []string{"string"},
		},
		{
			Name:     "sourceKind",
			DataType: []string{"string"}, // "text" | "ocr"
		},
		{
			Name:     "timestamp",
			DataType: []string{"date"},
		},
		{
			Name:     "language",
			DataType: []string{"string"},
		},
	}
}

// EnsureChatClass creates the chat's class if missing and backfills any
// properties added since the class was first created.
func EnsureChatClass(ctx context.Context, client SchemaClient, chatID string) error {
	className := ClassNameForChat(chatID)
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := chatClassProperties()

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "Indexed messages for a single chat",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
