package events

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var ErrUnknownKind = errors.New("unknown event kind")

// Encode renders e as a flat JSON object tagged with its kind.
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Kind(), err)
	}
	kind, err := json.Marshal(e.Kind())
	if err != nil {
		return nil, err
	}

	body = bytes.TrimSpace(body)
	var buf bytes.Buffer
	buf.Grow(len(body) + len(kind) + 12)
	buf.WriteString(`{"event":`)
	buf.Write(kind)
	if len(body) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// Decode parses a bus payload back into its event. Payloads that are not a
// JSON object become a Notification carrying the raw text; JSON objects
// without a recognised kind return ErrUnknownKind so callers can forward
// them untouched.
func Decode(data []byte) (Event, error) {
	var head struct {
		Event Kind `json:"event"`
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &head) != nil {
		return Notification{Message: string(data)}, nil
	}

	var (
		e   Event
		err error
	)
	switch head.Event {
	case KindProjectCreated:
		e, err = decodeAs[ProjectCreated](trimmed)
	case KindProjectUpdated:
		e, err = decodeAs[ProjectUpdated](trimmed)
	case KindProjectDeleted:
		e, err = decodeAs[ProjectDeleted](trimmed)
	case KindTaskCreated:
		e, err = decodeAs[TaskCreated](trimmed)
	case KindTaskUpdated:
		e, err = decodeAs[TaskUpdated](trimmed)
	case KindTaskDeleted:
		e, err = decodeAs[TaskDeleted](trimmed)
	case KindTaskMoved:
		e, err = decodeAs[TaskMoved](trimmed)
	case KindNotification:
		e, err = decodeAs[Notification](trimmed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Event, err)
	}
	return e, nil
}

func decodeAs[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
