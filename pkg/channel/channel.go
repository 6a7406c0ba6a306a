// Package channel defines the adapter contract for external transports that
// carry utterances into the assistant and responses back out.
package channel

import "context"

// Adapter bridges one external transport (for example Telegram or the local
// console) into the assistant. Run blocks until the context is cancelled or
// the transport fails; inbound utterances are published as speech.result
// events, and responses come back as skill.response events whose source
// identifies the adapter.
type Adapter interface {
	Name() string
	Run(ctx context.Context) error
}
