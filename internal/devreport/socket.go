package devreport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/bootreplay/internal/ctxlog"
	"github.com/specialistvlad/bootreplay/internal/watcher"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// StatusEvent is the socket.io event name status updates are emitted under.
const StatusEvent = "rebuild_status"

// SocketOptions configure DialSocket.
type SocketOptions struct {
	// Namespace is the socket.io namespace, "/" when empty.
	Namespace          string
	InsecureSkipVerify bool
	// ConnectTimeout bounds the initial connection, 15s when zero.
	ConnectTimeout time.Duration
}

// SocketReporter emits every status to a socket.io server.
type SocketReporter struct {
	io *socket.Socket
}

// DialSocket connects to the socket.io server at rawURL and waits for the
// connection to be established.
func DialSocket(ctx context.Context, rawURL string, o SocketOptions) (*SocketReporter, error) {
	logger := ctxlog.FromContext(ctx).With("reporter", "socketio", "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("report URL %q needs a scheme and a host", rawURL)
	}
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	namespace := o.Namespace
	if namespace == "" {
		namespace = "/"
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Status reporter connected", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketReporter{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// Report implements Reporter.
func (r *SocketReporter) Report(s watcher.Status) {
	r.io.Emit(StatusEvent, FromStatus(s).Fields())
}

// Close disconnects from the server.
func (r *SocketReporter) Close() error {
	r.io.Disconnect()
	return nil
}
