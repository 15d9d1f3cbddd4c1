// Package daemontest provides an in-process fake of the toolchain daemon for
// tests. Connections are served over net.Pipe, so no socket file is needed.
package daemontest

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	"github.com/dyluth/boardctl/internal/codec"
	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/dyluth/boardctl/pkg/boards"
)

// Request is a decoded request map.
type Request map[string]any

// Action returns the request's action.
func (r Request) Action() string { return r.String("action") }

// String returns a string field, or "" if absent.
func (r Request) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Handler serves one call. ctx is cancelled when the client closes the
// connection.
type Handler func(ctx context.Context, req Request, w *Writer)

// Writer writes response frames.
type Writer struct {
	enc *codec.Encoder
}

// Frame writes an arbitrary frame.
func (w *Writer) Frame(f daemon.Frame) error {
	return w.enc.Encode(f)
}

// Progress writes a progress frame.
func (w *Writer) Progress(message string, percent float64) error {
	return w.Frame(daemon.Frame{Kind: daemon.FrameProgress, Message: message, Percent: percent})
}

// Output writes an output frame.
func (w *Writer) Output(stream, text string) error {
	return w.Frame(daemon.Frame{Kind: daemon.FrameOutput, Stream: stream, Text: text})
}

// Ports writes a detected-ports snapshot.
func (w *Writer) Ports(ports boards.DetectedPorts) error {
	return w.Frame(daemon.Frame{Kind: daemon.FramePorts, Ports: ports})
}

// Sketches writes a sketchbook change.
func (w *Writer) Sketches(evt daemon.SketchEvent) error {
	return w.Frame(daemon.Frame{Kind: daemon.FrameSketches, Sketches: &evt})
}

// Platform writes a platform install or uninstall notification.
func (w *Writer) Platform(change string, evt boards.PlatformEvent) error {
	return w.Frame(daemon.Frame{Kind: daemon.FramePlatform, Platform: &daemon.PlatformChange{Change: change, Event: evt}})
}

// Result writes the terminal result frame.
func (w *Writer) Result(v any) error {
	f := daemon.Frame{Kind: daemon.FrameResult}
	if v != nil {
		data, err := codec.Marshal(v)
		if err != nil {
			return err
		}
		f.Data = data
	}
	return w.Frame(f)
}

// Error writes the terminal error frame.
func (w *Writer) Error(payload daemon.ErrorPayload) error {
	return w.Frame(daemon.Frame{Kind: daemon.FrameError, Error: &payload})
}

// Server is a fake daemon.
type Server struct {
	t *testing.T

	mu       sync.Mutex
	handlers map[string]Handler
	requests []Request
	wg       sync.WaitGroup
}

// NewServer creates a fake daemon. Handlers still running when the test
// ends are waited for.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{t: t, handlers: map[string]Handler{}}
	t.Cleanup(s.wg.Wait)
	return s
}

// Handle registers h for action, replacing any previous handler.
func (s *Server) Handle(action string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[action] = h
}

// HandleResult registers a handler answering action with a single result.
func (s *Server) HandleResult(action string, v any) {
	s.Handle(action, func(ctx context.Context, req Request, w *Writer) {
		w.Result(v)
	})
}

// HandleError registers a handler answering action with a single error.
func (s *Server) HandleError(action string, payload daemon.ErrorPayload) {
	s.Handle(action, func(ctx context.Context, req Request, w *Writer) {
		w.Error(payload)
	})
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsFor returns the requests received for action.
func (s *Server) RequestsFor(action string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Action() == action {
			out = append(out, r)
		}
	}
	return out
}

// Dial connects a new client connection to the server.
func (s *Server) Dial(ctx context.Context) (net.Conn, error) {
	client, server := net.Pipe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve(server)
	}()
	return client, nil
}

// Client returns a daemon client connected to the server.
func (s *Server) Client(logger *slog.Logger) *daemon.Client {
	return daemon.NewClientWithDialer("fake-daemon", s.Dial, logger)
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := codec.NewDecoder(conn).Decode(&req); err != nil {
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	h, ok := s.handlers[req.Action()]
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		io.Copy(io.Discard, conn)
		cancel()
	}()

	w := &Writer{enc: codec.NewEncoder(conn)}
	if !ok {
		w.Error(daemon.ErrorPayload{Message: "unknown action " + req.Action()})
		return
	}
	h(ctx, req, w)
}
