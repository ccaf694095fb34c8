package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// maxLineBytes bounds one newline-delimited JSON-RPC message.
const maxLineBytes = 4 << 20

// ServeStdio reads newline-delimited JSON-RPC messages from r and writes one
// response line per request to w. It returns nil when r reaches EOF and
// ctx.Err() when ctx is cancelled first. Requests are answered in order.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := bytes.Clone(scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	encoder := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("mcp: stdio read: %w", err)
					}
				default:
				}
				return ctx.Err()
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			response := s.HandleBytes(ctx, line)
			if response == nil {
				continue
			}
			if err := encoder.Encode(response); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return nil
				}
				return fmt.Errorf("mcp: stdio write: %w", err)
			}
			s.logger.Debug("mcp: stdio response sent", slog.String("id", string(response.ID)))
		}
	}
}
