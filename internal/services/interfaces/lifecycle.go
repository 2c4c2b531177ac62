// Package serviceinterfaces defines contracts shared by long-lived services.
package serviceinterfaces

import (
	"context"
)

// Lifecycle is implemented by services that hold connections the container
// must open at startup and release on shutdown
type Lifecycle interface {
	// Startup is called once before the server accepts requests
	Startup(ctx context.Context) error

	// Shutdown releases resources; it is called during graceful shutdown
	Shutdown(ctx context.Context) error

	// IsReady returns whether the service is ready to handle requests
	IsReady() bool
}
