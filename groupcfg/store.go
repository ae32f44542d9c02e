package groupcfg

import "context"

// Config is the per-conversation behavior switchboard. An absent entry
// is equivalent to the zero-value-with-open-default below; it is only
// materialized on first write.
type Config struct {
	IsOpen  bool   `json:"is_open"`
	Welcome string `json:"welcome,omitempty"`
	Bye     string `json:"bye,omitempty"`
}

// DefaultConfig is what Get returns for conversations never written.
func DefaultConfig() Config {
	return Config{IsOpen: true}
}

type Store interface {
	Get(ctx context.Context, conversationID string) (Config, error)
	SetOpen(ctx context.Context, conversationID string, open bool) error
	SetWelcome(ctx context.Context, conversationID, template string) error
	SetBye(ctx context.Context, conversationID, template string) error
}
