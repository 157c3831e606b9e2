package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/avernost/depwatch/internal/alert"
)

const deliveryTimeout = 15 * time.Second

// Fanout dispatches alerts to every configured channel. Deliveries run in
// their own goroutines so a slow or failing channel never blocks the check
// cycle or the other channels. Delivery is at-most-once: failures are
// logged, never retried.
type Fanout struct {
	channels []Channel
	logger   *slog.Logger
}

// NewFanout creates a Fanout. Pass nil logger to use the default logger.
func NewFanout(channels []Channel, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{channels: channels, logger: logger}
}

// ChannelNames returns the names of the configured channels.
func (f *Fanout) ChannelNames() []string {
	names := make([]string, 0, len(f.channels))
	for _, ch := range f.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch hands the alert to every channel and returns immediately.
func (f *Fanout) Dispatch(a alert.Alert) {
	for _, ch := range f.channels {
		go f.deliver(ch, a)
	}
}

func (f *Fanout) deliver(ch Channel, a alert.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := ch.Deliver(ctx, a); err != nil {
		f.logger.Error("alert delivery failed",
			"channel", ch.Name(),
			"service", a.ServiceName,
			"kind", a.Kind,
			"error", err,
		)
		return
	}
	f.logger.Info("alert delivered",
		"channel", ch.Name(),
		"service", a.ServiceName,
		"kind", a.Kind,
		"severity", a.Severity,
	)
}
