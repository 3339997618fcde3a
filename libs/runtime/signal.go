package runtime

import (
	"context"
	"os/signal"
	"syscall"
)

// SignalContext returns the root context, cancelled on SIGINT/SIGTERM so
// servers and pollers can drain before exit.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
