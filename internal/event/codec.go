package event

import (
	"encoding/json"
	"fmt"
)

// decoders maps the outbox MessageType column back to a typed event.
var decoders = map[string]func([]byte) (Event, error){
	TypeProjectCreated:      decodeAs[ProjectCreated],
	TypeMemberAdded:         decodeAs[MemberAdded],
	TypeSprintCreated:       decodeAs[SprintCreated],
	TypeSprintStatusChanged: decodeAs[SprintStatusChanged],
	TypeTaskCreated:         decodeAs[TaskCreated],
	TypeTaskStatusChanged:   decodeAs[TaskStatusChanged],
	TypeTaskMoved:           decodeAs[TaskMoved],
	TypeCommentAdded:        decodeAs[CommentAdded],
}

func decodeAs[T Event](raw []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// Encode serializes an event for the outbox Payload column.
func Encode(e Event) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	return string(b), nil
}

// Decode turns a stored payload back into its typed event. A payload whose
// message type is unknown or whose JSON is malformed is a poison message.
func Decode(messageType, payload string) (Event, error) {
	dec, ok := decoders[messageType]
	if !ok {
		return nil, fmt.Errorf("decode: unknown message type %q", messageType)
	}
	evt, err := dec([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", messageType, err)
	}
	return evt, nil
}
