package chatgpt

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSource is a LineSource over a fixed slice that records how many
// lines were consumed and how many times it was closed.
type recordingSource struct {
	mu       sync.Mutex
	lines    []string
	err      error
	consumed int
	closes   int
}

func newRecordingSource(lines ...string) *recordingSource {
	return &recordingSource{lines: lines}
}

func (s *recordingSource) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return "", errors.New("read on closed source")
	}
	if s.consumed == len(s.lines) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	line := s.lines[s.consumed]
	s.consumed++
	return line, nil
}

func (s *recordingSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *recordingSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

const (
	roleLine    = `data: {"object":"chat.completion.chunk","choices":[{"delta":{"role":"assistant"}}]}`
	hiLine      = `data: {"object":"chat.completion.chunk","choices":[{"delta":{"content":"Hi"}}]}`
	thereLine   = `data: {"object":"chat.completion.chunk","choices":[{"delta":{"content":" there"}}]}`
	endLine     = `data: {"object":"chat.completion.chunk","choices":[{"delta":{"content":null}}]}`
	trailerLine = `data: {"object":"chat.completion.chunk","choices":[{"delta":{"content":"never"}}]}`
)

func collect(t *testing.T, s *Stream) ([]string, error) {
	t.Helper()
	var out []string
	for chunk, err := range s.Text() {
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
	return out, nil
}

func TestStream_EndToEnd(t *testing.T) {
	src := newRecordingSource(roleLine, hiLine, thereLine, endLine, trailerLine)
	got, err := collect(t, NewStream(src, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, got)
	assert.Equal(t, 4, src.consumed, "lines after the terminal marker must not be read")
	assert.Equal(t, 1, src.closeCount())
}

func TestStream_RoleEmitsNothing(t *testing.T) {
	src := newRecordingSource(roleLine)
	s := NewStream(src, nil)

	_, err := s.Recv()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, src.consumed)
}

func TestStream_ContentEmitsExactlyOnce(t *testing.T) {
	s := NewStream(newRecordingSource(`data: {"object":"chat.completion.chunk","choices":[{"delta":{"content":"x"}}]}`), nil)

	d, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "x", d.Text())

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_NullContentEndsWithoutError(t *testing.T) {
	src := newRecordingSource(endLine, hiLine)
	got, err := collect(t, NewStream(src, nil))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, src.consumed)
}

func TestStream_SourceExhaustionEndsSuccessfully(t *testing.T) {
	src := newRecordingSource(roleLine, hiLine)
	got, err := collect(t, NewStream(src, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi"}, got)
	assert.Equal(t, 1, src.closeCount())
}

func TestStream_DoneSentinel(t *testing.T) {
	src := newRecordingSource(hiLine, "", "data: [DONE]", trailerLine)
	got, err := collect(t, NewStream(src, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi"}, got)
	assert.Equal(t, 3, src.consumed)
}

func TestStream_UnprefixedLinesAreSkipped(t *testing.T) {
	src := newRecordingSource(": keep-alive", "event: message", roleLine, "", hiLine, "garbage", thereLine, endLine)
	got, err := collect(t, NewStream(src, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, got)
}

func TestStream_MalformedJSONFails(t *testing.T) {
	src := newRecordingSource(hiLine, `data: {"choices":[`, thereLine)
	s := NewStream(src, nil)

	got, err := collect(t, s)
	assert.Equal(t, []string{"Hi"}, got)
	var decErr *DecodingError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, `{"choices":[`, decErr.Raw)
	assert.Equal(t, 2, src.consumed, "no line after the malformed one is consumed")
	assert.Equal(t, 1, src.closeCount())

	_, again := s.Recv()
	assert.Same(t, err, again, "failure is sticky")
}

func TestStream_TransportErrorFails(t *testing.T) {
	src := newRecordingSource(hiLine)
	src.err = errors.New("connection reset")
	s := NewStream(src, nil)

	d, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Hi", d.Text())

	_, err = s.Recv()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.EqualError(t, te.Err, "connection reset")
	assert.Equal(t, 1, src.closeCount())
}

func TestStream_BreakReleasesSourceOnce(t *testing.T) {
	src := newRecordingSource(roleLine, hiLine, thereLine, endLine)
	s := NewStream(src, nil)

	for chunk, err := range s.Text() {
		require.NoError(t, err)
		assert.Equal(t, "Hi", chunk)
		break
	}
	assert.Equal(t, 1, src.closeCount())
	assert.Equal(t, 2, src.consumed)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, src.closeCount(), "second Close must not close the source again")

	_, err := s.Recv()
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStream_CloseRacesWithEnd(t *testing.T) {
	for i := 0; i < 50; i++ {
		src := newRecordingSource(roleLine, hiLine, endLine)
		s := NewStream(src, nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range s.Deltas() {
			}
		}()
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
		wg.Wait()

		assert.Equal(t, 1, src.closeCount())
	}
}

func TestStream_Deltas(t *testing.T) {
	src := newRecordingSource(
		roleLine,
		`data: {"model":"gpt-4","object":"chat.completion.chunk","choices":[{"delta":{"content":"a"}}]}`,
		endLine,
	)
	var got []ResultDelta
	for d, err := range NewStream(src, nil).Deltas() {
		require.NoError(t, err)
		got = append(got, d)
	}
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Model)
	assert.Equal(t, "gpt-4", *got[0].Model)
	assert.Equal(t, DeltaContent, got[0].Choices[0].Delta.Kind())
}

func TestCollectText(t *testing.T) {
	text, err := CollectText(NewStream(newRecordingSource(roleLine, hiLine, thereLine, endLine), nil).Text())
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
}
