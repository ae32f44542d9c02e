package trigger

import "context"

// Store is the keyed library of auto-replies, scoped per conversation.
// Keywords are normalized before storage and lookup; enumeration
// preserves insertion order.
type Store interface {
	Lookup(ctx context.Context, conversationID, keyword string) (Item, bool, error)
	Upsert(ctx context.Context, conversationID, keyword string, item Item) error
	Remove(ctx context.Context, conversationID, keyword string) (bool, error)
	Keywords(ctx context.Context, conversationID string) ([]string, error)
	Get(ctx context.Context, conversationID string) (map[string]Item, error)

	// SaveMedia persists attachment bytes as a durable blob and returns
	// the MediaRef to store alongside the item.
	SaveMedia(ctx context.Context, conversationID, keyword, mimeType string, data []byte) (string, error)
}
