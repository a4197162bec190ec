// Package providers contains dependency injection providers for FlashDeck.
package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for queued media work on shutdown.
	shutdownTimeout = 30 * time.Second
)
