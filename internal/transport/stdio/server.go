// Package stdio serves JSON-RPC over newline-delimited messages on a
// reader/writer pair, normally the process's stdin and stdout.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const defaultMaxMessageBytes = 1 << 20

// Handler processes one message and returns the reply, or nil for none.
type Handler interface {
	Handle(ctx context.Context, raw []byte) []byte
}

// Server reads one message per line and writes one reply per line.
type Server struct {
	handler  Handler
	maxBytes int
}

// NewServer creates a new Server. maxBytes bounds a single line; zero
// selects a 1 MiB default.
func NewServer(h Handler, maxBytes int) *Server {
	if maxBytes <= 0 {
		maxBytes = defaultMaxMessageBytes
	}
	return &Server{handler: h, maxBytes: maxBytes}
}

// Serve blocks until in reaches EOF, ctx is cancelled, or a write fails.
// A clean EOF returns nil.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		readErr <- s.readLines(ctx, in, lines)
		close(lines)
	}()

	slog.Info("stdio transport ready")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				slog.Info("stdin closed")
				return nil
			}
			if reply := s.handler.Handle(ctx, line); reply != nil {
				if err := writeLine(out, reply); err != nil {
					return fmt.Errorf("write stdout: %w", err)
				}
			}
		}
	}
}

func (s *Server) readLines(ctx context.Context, in io.Reader, lines chan<- []byte) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), s.maxBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		select {
		case lines <- msg:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeLine(out io.Writer, reply []byte) error {
	buf := make([]byte, 0, len(reply)+1)
	buf = append(append(buf, reply...), '\n')
	_, err := out.Write(buf)
	return err
}
