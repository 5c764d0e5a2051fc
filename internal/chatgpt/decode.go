package chatgpt

import (
	"encoding/json"
	"strings"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// EventKind is the interpretation of one raw stream line.
type EventKind int

const (
	// EventSkip is a line that carries nothing for the consumer: SSE
	// separators, comments, non-data fields, usage-only chunks.
	EventSkip EventKind = iota
	// EventRole opens the stream; it carries a role and no text.
	EventRole
	// EventContent carries a text fragment.
	EventContent
	// EventEnd is a delta with neither role nor content.
	EventEnd
	// EventDone is the "data: [DONE]" sentinel.
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventSkip:
		return "skip"
	case EventRole:
		return "role"
	case EventContent:
		return "content"
	case EventEnd:
		return "end"
	case EventDone:
		return "done"
	}
	return "unknown"
}

// Terminal reports whether no further lines should be consumed after k.
func (k EventKind) Terminal() bool { return k == EventEnd || k == EventDone }

// Event is the decoded form of a single line.
type Event struct {
	Kind EventKind
	// Delta is set for EventRole, EventContent, EventEnd and for a skipped
	// chunk with no choices.
	Delta ResultDelta
	Raw   string
}

// DecodeLine parses one raw line. A line without the "data: " prefix is
// skipped rather than rejected. JSON that does not match ResultDelta yields
// a *DecodingError carrying the payload.
//
// Decoding uses encoding/json, which keeps no state between calls, so
// DecodeLine is safe for concurrent use by independent streams.
func DecodeLine(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return Event{Kind: EventSkip, Raw: line}, nil
	}
	if strings.TrimSpace(payload) == doneSentinel {
		return Event{Kind: EventDone, Raw: line}, nil
	}

	var delta ResultDelta
	if err := json.Unmarshal([]byte(payload), &delta); err != nil {
		return Event{Raw: line}, newDecodingError(payload, err)
	}

	ev := Event{Delta: delta, Raw: line}
	if len(delta.Choices) == 0 {
		ev.Kind = EventSkip
		return ev, nil
	}
	switch delta.Choices[0].Delta.Kind() {
	case DeltaRole:
		ev.Kind = EventRole
	case DeltaContent:
		ev.Kind = EventContent
	default:
		ev.Kind = EventEnd
	}
	return ev, nil
}

// DecodeMessage returns the primary choice's delta of a data line. ok is
// false for lines that carry no delta (comments, event fields, usage-only
// chunks). The [DONE] sentinel returns a zero delta, whose Kind is DeltaEnd,
// with ok true.
func DecodeMessage(line string) (delta MessageDelta, ok bool, err error) {
	ev, err := DecodeLine(line)
	if err != nil {
		return MessageDelta{}, false, err
	}
	switch ev.Kind {
	case EventSkip:
		return MessageDelta{}, false, nil
	case EventDone:
		return MessageDelta{}, true, nil
	}
	return ev.Delta.Choices[0].Delta, true, nil
}
