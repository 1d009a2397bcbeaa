package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"maestro-ai/internal/domain"
)

var (
	sseDataPrefix = []byte("data: ")
	sseDone       = []byte("[DONE]")
)

// maxStreamLine caps a single SSE line. Deltas are normally tiny, but a
// provider may flush a whole reply in one event; 1 MB keeps that from
// tripping bufio.ErrTooLong mid-stream.
const maxStreamLine = 1 << 20

// parseSSEStream converts "data:" payloads into StreamDeltas using the
// provider-specific parseLine function. The channel always carries a Done
// delta before closing, whatever ended the stream: the [DONE] sentinel, a
// Done-flagged delta, plain EOF, or a broken connection. Accumulators and
// chunk callbacks rely on that terminal delta as the completion signal.
// Malformed lines are skipped, never fatal.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseLine func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)

	go func() {
		defer close(ch)
		defer body.Close()

		doneSent := false
		emit := func(d domain.StreamDelta) bool {
			select {
			case ch <- d:
				doneSent = doneSent || d.Done
				return true
			case <-ctx.Done():
				return false
			}
		}
		defer func() {
			if !doneSent {
				emit(domain.StreamDelta{Done: true})
			}
		}()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))
			if len(line) == 0 || line[0] == ':' || !bytes.HasPrefix(line, sseDataPrefix) {
				continue
			}

			data := bytes.TrimPrefix(line, sseDataPrefix)
			if bytes.Equal(data, sseDone) {
				return
			}

			delta, err := parseLine(data)
			if err != nil || delta == nil {
				continue
			}
			if !emit(*delta) {
				return
			}
			if delta.Done {
				return
			}
		}
	}()

	return ch
}
