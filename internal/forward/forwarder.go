package forward

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/taskgridgo/internal/progress"
)

// connectTimeout bounds the initial connection handshake.
const connectTimeout = 10 * time.Second

// Forwarder emits progress events to one Socket.IO endpoint.
type Forwarder struct {
	logger *slog.Logger
	io     *socket.Socket

	// suspended flags that emits are being dropped, so the disconnect is
	// logged once instead of per event. Forward runs on one goroutine.
	suspended bool
}

// New connects to the forwarding endpoint and blocks until the handshake
// completes or times out. Callers treat an error as "run without
// forwarding", never as a fatal condition.
func New(ctx context.Context, rawURL string, logger *slog.Logger) (*Forwarder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "forward", "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse forwarding URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	connected := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Forwarding endpoint connected.", "sid", io.Id())
		select {
		case connected <- nil:
		default:
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})

	io.Connect()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	select {
	case <-connectCtx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("timed out while waiting for forwarding connection to %s", rawURL)
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("failed to connect to forwarding endpoint: %w", err)
		}
	}

	return &Forwarder{logger: logger, io: io}, nil
}

// Forward relays events until the channel closes. The app runs it on its
// own goroutine.
func (f *Forwarder) Forward(events <-chan progress.Event) {
	for e := range events {
		f.forward(e)
	}
	f.logger.Debug("Forwarding stream ended.")
}

func (f *Forwarder) forward(e progress.Event) {
	if f.io == nil || !f.io.Connected() {
		if !f.suspended {
			f.suspended = true
			f.logger.Warn("Forwarding suspended, endpoint not connected.")
		}
		return
	}
	if f.suspended {
		f.suspended = false
		f.logger.Info("Forwarding resumed.")
	}
	f.io.Emit(eventName(e), eventPayload(e))
}

// Close disconnects the underlying socket.
func (f *Forwarder) Close() {
	if f.io == nil {
		return
	}
	f.logger.Debug("Disconnecting forwarding client.")
	f.io.Disconnect()
}

// eventName maps an event to the Socket.IO event it is emitted as.
func eventName(e progress.Event) string {
	return "taskgrid:" + string(e.Kind)
}

// eventPayload flattens an event into plain wire types.
func eventPayload(e progress.Event) map[string]any {
	out := map[string]any{
		"kind":      string(e.Kind),
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
	}
	if e.RunID != "" {
		out["run_id"] = e.RunID
	}
	if e.TaskKey != "" {
		out["task_key"] = e.TaskKey
	}
	if len(e.Payload) > 0 {
		out["payload"] = e.Payload
	}
	return out
}
