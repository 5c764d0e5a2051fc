package chatgpt

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// maxLineBytes bounds a single event line.
const maxLineBytes = 1 << 20

// LineSource yields raw lines of an event stream. Next returns io.EOF once
// the source is exhausted. Close releases the underlying connection.
type LineSource interface {
	Next() (string, error)
	Close() error
}

type bodyLineSource struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// NewBodyLineSource splits an HTTP response body into lines.
func NewBodyLineSource(body io.ReadCloser) LineSource {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &bodyLineSource{body: body, scanner: scanner}
}

func (s *bodyLineSource) Next() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", &TransportError{Op: "read stream", Err: err}
	}
	return "", io.EOF
}

func (s *bodyLineSource) Close() error { return s.body.Close() }

type streamState int

const (
	stateStreaming streamState = iota
	stateDone
	stateFailed
)

// Stream turns a LineSource into a pull-driven sequence of content deltas.
//
// Role markers and non-data lines are skipped; a delta without role or
// content, the [DONE] sentinel, or the end of the source finishes the stream.
// The first decode or transport error fails it. Both outcomes are sticky and
// release the source immediately.
//
// Recv must be called from one goroutine at a time; Close may be called from
// any goroutine.
type Stream struct {
	src    LineSource
	logger *slog.Logger

	state streamState
	err   error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps src. A nil logger discards output.
func NewStream(src LineSource, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stream{src: src, logger: logger}
}

// Recv returns the next content delta, io.EOF when the stream finished
// normally, or the error that failed it.
func (s *Stream) Recv() (ResultDelta, error) {
	for {
		switch s.state {
		case stateDone:
			return ResultDelta{}, io.EOF
		case stateFailed:
			return ResultDelta{}, s.err
		}
		if s.closed.Load() {
			return ResultDelta{}, ErrStreamClosed
		}

		line, err := s.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("chatgpt stream exhausted")
				s.finish()
				return ResultDelta{}, io.EOF
			}
			if s.closed.Load() {
				return ResultDelta{}, ErrStreamClosed
			}
			var te *TransportError
			if !errors.As(err, &te) {
				err = &TransportError{Op: "read stream", Err: err}
			}
			return ResultDelta{}, s.fail(err)
		}

		ev, err := DecodeLine(line)
		if err != nil {
			return ResultDelta{}, s.fail(err)
		}
		switch ev.Kind {
		case EventSkip, EventRole:
			continue
		case EventContent:
			return ev.Delta, nil
		default:
			s.logger.Debug("chatgpt stream terminal event", "kind", ev.Kind.String())
			s.finish()
			return ResultDelta{}, io.EOF
		}
	}
}

// Close releases the source. It is idempotent and safe to call concurrently
// with Recv reaching the end of the stream; the source is closed exactly once.
func (s *Stream) Close() error {
	s.closed.Store(true)
	return s.release()
}

// Deltas returns the stream as a range-over-func sequence of full deltas.
// Breaking out of the loop closes the stream. An error is yielded once, as
// the last element.
func (s *Stream) Deltas() iter.Seq2[ResultDelta, error] {
	return func(yield func(ResultDelta, error) bool) {
		defer s.Close()
		for {
			d, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(ResultDelta{}, err)
				return
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Text is like Deltas but yields only the content fragments.
func (s *Stream) Text() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for d, err := range s.Deltas() {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(d.Text(), nil) {
				return
			}
		}
	}
}

// CollectText drains a text sequence into a single string.
func CollectText(seq iter.Seq2[string, error]) (string, error) {
	var sb strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
	return sb.String(), nil
}

func (s *Stream) finish() {
	s.state = stateDone
	_ = s.release()
}

func (s *Stream) fail(err error) error {
	s.state = stateFailed
	s.err = err
	s.logger.Warn("chatgpt stream failed", "error", err)
	_ = s.release()
	return err
}

func (s *Stream) release() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}
