package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// connectTimeout bounds the initial connection handshake.
const connectTimeout = 10 * time.Second

// opResult is a private struct to safely pass results through the done channel.
type opResult struct {
	value map[string]any
	err   error
}

// SocketRunner is a Runner backed by one persistent Socket.IO connection.
type SocketRunner struct {
	logger  *slog.Logger
	manager *socket.Manager
	io      *socket.Socket
}

// NewSocketRunner connects to the automation endpoint and blocks until the
// handshake completes or ctx/the connect timeout expires.
func NewSocketRunner(ctx context.Context, rawURL string, logger *slog.Logger) (*SocketRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "automation", "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse automation URL: %w", err)
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
		logger.Info("Automation endpoint connected.", "sid", io.Id())
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
		return nil, fmt.Errorf("timed out while waiting for automation connection to %s", rawURL)
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("failed to connect to automation endpoint: %w", err)
		}
	}

	return &SocketRunner{logger: logger, manager: manager, io: io}, nil
}

// Run emits the command and waits for the paired "<name>:result" event.
func (r *SocketRunner) Run(ctx context.Context, cmd Command) (map[string]any, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("automation command without a name")
	}
	if !r.io.Connected() {
		return nil, fmt.Errorf("automation client is not connected")
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := awaitEvent(r.io, types.EventName(cmd.Name+":result"))

	r.logger.Debug("Emitting automation command.", "command", cmd.Name)
	r.io.Emit(cmd.Name, cmd.Args)

	res, ok := wait(opCtx)
	if !ok {
		return nil, fmt.Errorf("timed out after %v waiting for result of %q", timeout, cmd.Name)
	}
	if res.err != nil {
		return nil, res.err
	}
	r.logger.Debug("Automation command completed.", "command", cmd.Name)
	return res.value, nil
}

// resultEmitter is the slice of the socket API the waiter needs.
type resultEmitter interface {
	Once(types.EventName, ...types.Listener) error
	RemoveListener(types.EventName, types.Listener) bool
}

// awaitEvent registers a one-shot listener for event and returns a wait
// function delivering its payload. A wait that ends on the context instead
// unregisters the listener, so an abandoned operation cannot swallow a
// late result or the result of the next command with the same name.
func awaitEvent(emitter resultEmitter, event types.EventName) func(context.Context) (opResult, bool) {
	done := make(chan opResult, 1)
	listener := func(data ...any) {
		if len(data) == 0 {
			done <- opResult{}
			return
		}
		payload, err := toMap(data[0])
		done <- opResult{value: payload, err: err}
	}
	emitter.Once(event, listener)

	return func(ctx context.Context) (opResult, bool) {
		select {
		case <-ctx.Done():
			emitter.RemoveListener(event, listener)
			return opResult{}, false
		case res := <-done:
			return res, true
		}
	}
}

// Close disconnects the underlying socket.
func (r *SocketRunner) Close() {
	r.logger.Debug("Disconnecting automation client.")
	r.io.Disconnect()
}

// toMap normalizes whatever the wire decoder produced into a string-keyed
// map. Scalars and arrays are wrapped under a "result" key.
func toMap(v any) (map[string]any, error) {
	switch typed := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return typed, nil
	default:
		// Round-trip through JSON to flatten whatever concrete types the
		// parser emitted.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert automation result: %w", err)
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		var scalar any
		if err := json.Unmarshal(raw, &scalar); err != nil {
			return nil, fmt.Errorf("failed to convert automation result: %w", err)
		}
		return map[string]any{"result": scalar}, nil
	}
}
