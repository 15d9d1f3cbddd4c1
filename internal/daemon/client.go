// Package daemon is the client side of the toolchain daemon socket.
//
// Each call opens a new unix socket connection, writes one CBOR request map
// ({"action": ..., fields...}) and reads a sequence of CBOR frames ending in
// exactly one result or error frame. Cancelling the call's context closes
// the connection, which the daemon observes as the cancellation signal.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dyluth/boardctl/internal/codec"
	"github.com/dyluth/boardctl/pkg/boards"
)

// dialTimeout covers only the connect phase; streams may run for as long as
// a compile takes.
const dialTimeout = 5 * time.Second

// DialFunc opens a connection to the daemon.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Client talks to the daemon. It holds no connection between calls and is
// safe for concurrent use.
type Client struct {
	target string
	dial   DialFunc
	logger *slog.Logger
}

// NewClient creates a client for the daemon listening on socketPath.
func NewClient(socketPath string, logger *slog.Logger) *Client {
	dialer := net.Dialer{Timeout: dialTimeout}
	return NewClientWithDialer(socketPath, func(ctx context.Context) (net.Conn, error) {
		return dialer.DialContext(ctx, "unix", socketPath)
	}, logger)
}

// NewClientWithDialer creates a client using dial to reach the daemon.
// target only names the daemon in errors and logs.
func NewClientWithDialer(target string, dial DialFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		target: target,
		dial:   dial,
		logger: logger.With("component", "daemon"),
	}
}

// Open sends a request and returns the response stream. fields is encoded
// to a CBOR map and merged with the action; it must not carry an "action" key.
func (c *Client) Open(ctx context.Context, action string, fields any) (*Stream, error) {
	request, err := buildRequest(action, fields)
	if err != nil {
		return nil, err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon at %s: %w", c.target, err)
	}

	// The write side stays open: closing the connection is how a cancelled
	// call is signalled to the daemon.
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing %q request: %w", action, err)
	}

	c.logger.Debug("daemon call opened", "action", action)

	s := &Stream{
		action: action,
		ctx:    ctx,
		conn:   conn,
		dec:    codec.NewDecoder(conn),
	}
	s.stop = context.AfterFunc(ctx, func() { conn.Close() })
	return s, nil
}

func buildRequest(action string, fields any) (map[string]any, error) {
	request := map[string]any{}
	if fields != nil {
		data, err := codec.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("encoding %q request: %w", action, err)
		}
		if err := codec.Unmarshal(data, &request); err != nil {
			return nil, fmt.Errorf("%q request fields must encode as a map: %w", action, err)
		}
		if _, ok := request["action"]; ok {
			return nil, fmt.Errorf("%q request fields must not contain an action key", action)
		}
	}
	request["action"] = action
	return request, nil
}

// Stream is an open response stream.
type Stream struct {
	action string
	ctx    context.Context
	conn   net.Conn
	dec    *codec.Decoder
	stop   func() bool

	done      bool
	closeOnce sync.Once
}

// Action returns the action the stream answers.
func (s *Stream) Action() string { return s.action }

// Next returns the next frame. After the terminal frame it returns io.EOF.
// If the call's context ends first, the context's error is returned.
func (s *Stream) Next() (Frame, error) {
	if s.done {
		return Frame{}, io.EOF
	}

	var f Frame
	if err := s.dec.Decode(&f); err != nil {
		s.done = true
		s.Close()
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return Frame{}, ctxErr
		}
		if errors.Is(err, io.EOF) {
			return Frame{}, fmt.Errorf("%q stream ended without a terminal frame: %w", s.action, io.ErrUnexpectedEOF)
		}
		return Frame{}, fmt.Errorf("reading %q frame: %w", s.action, err)
	}

	if f.Kind.Terminal() {
		s.done = true
		s.Close()
	}
	return f, nil
}

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stop()
		err = s.conn.Close()
	})
	return err
}

// call runs a unary action and decodes its result into result.
func (c *Client) call(ctx context.Context, action string, fields any, result any) error {
	s, err := c.Open(ctx, action, fields)
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		f, err := s.Next()
		if err != nil {
			return err
		}
		switch f.Kind {
		case FrameResult:
			return f.Decode(result)
		case FrameError:
			return f.Error.Err(action)
		default:
			c.logger.Debug("ignoring frame on unary call", "action", action, "kind", f.Kind)
		}
	}
}

type fqbnFields struct {
	FQBN string `cbor:"fqbn"`
}

// BoardDetails fetches the details of a board. A board whose platform is not
// installed fails with a daemon error saying so.
func (c *Client) BoardDetails(ctx context.Context, fqbn string) (*boards.BoardDetails, error) {
	var details boards.BoardDetails
	if err := c.call(ctx, "board_details", fqbnFields{FQBN: fqbn}, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// PlatformVersion returns the installed version of the board's platform, or
// "" when the platform is not installed.
func (c *Client) PlatformVersion(ctx context.Context, fqbn string) (string, error) {
	var result struct {
		Version string `cbor:"version"`
	}
	err := c.call(ctx, "platform_version", fqbnFields{FQBN: fqbn}, &result)
	var daemonErr *Error
	if errors.As(err, &daemonErr) && daemonErr.Code == CodeNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return result.Version, nil
}

// IndexStatus asks whether the indexes were updated before the first client
// connected.
func (c *Client) IndexStatus(ctx context.Context) (IndexStatus, error) {
	var status IndexStatus
	err := c.call(ctx, "index_status", nil, &status)
	return status, err
}

// Compile starts a compile.
func (c *Client) Compile(ctx context.Context, req CompileRequest) (*Stream, error) {
	return c.Open(ctx, "compile", req)
}

// Upload starts an upload.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*Stream, error) {
	return c.Open(ctx, "upload", req)
}

// BurnBootloader starts a bootloader burn.
func (c *Client) BurnBootloader(ctx context.Context, req BootloaderRequest) (*Stream, error) {
	return c.Open(ctx, "burn_bootloader", req)
}

// UpdateIndex starts an index update.
func (c *Client) UpdateIndex(ctx context.Context, req UpdateIndexRequest) (*Stream, error) {
	return c.Open(ctx, "update_index", req)
}

// WatchPorts delivers every detected-ports snapshot to fn until ctx is
// cancelled, which ends the watch without error.
func (c *Client) WatchPorts(ctx context.Context, fn func(boards.DetectedPorts)) error {
	s, err := c.Open(ctx, "watch_ports", nil)
	if err != nil {
		return err
	}
	defer s.Close()

	c.logger.Info("watching detected ports")
	for {
		f, err := s.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch f.Kind {
		case FramePorts:
			if f.Ports == nil {
				f.Ports = boards.DetectedPorts{}
			}
			fn(f.Ports)
		case FrameError:
			return f.Error.Err("watch_ports")
		case FrameResult:
			return nil
		}
	}
}

// WatchSketches delivers sketchbook changes to fn until ctx is cancelled,
// which ends the watch without error.
func (c *Client) WatchSketches(ctx context.Context, fn func(SketchEvent)) error {
	s, err := c.Open(ctx, "watch_sketches", nil)
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		f, err := s.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch f.Kind {
		case FrameSketches:
			if f.Sketches != nil {
				fn(*f.Sketches)
			}
		case FrameError:
			return f.Error.Err("watch_sketches")
		case FrameResult:
			return nil
		}
	}
}

// DetectedPorts returns the first detected-ports snapshot of a watch and
// ends the watch.
func (c *Client) DetectedPorts(ctx context.Context) (boards.DetectedPorts, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var snapshot boards.DetectedPorts
	err := c.WatchPorts(ctx, func(p boards.DetectedPorts) {
		if snapshot == nil {
			snapshot = p
			cancel()
		}
	})
	if snapshot != nil {
		return snapshot, nil
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = fmt.Errorf("watch_ports ended without a snapshot")
	}
	return nil, err
}

// WatchPlatforms delivers platform install and uninstall notifications to fn
// until ctx is cancelled, which ends the watch without error.
func (c *Client) WatchPlatforms(ctx context.Context, fn func(PlatformChange)) error {
	s, err := c.Open(ctx, "watch_platforms", nil)
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		f, err := s.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch f.Kind {
		case FramePlatform:
			if f.Platform != nil {
				fn(*f.Platform)
			}
		case FrameError:
			return f.Error.Err("watch_platforms")
		case FrameResult:
			return nil
		}
	}
}
