package phxsocket

import "encoding/json"

// NoRef is the internal sentinel for a message that carries no reply
// reference. On the wire it is represented as a JSON null.
const NoRef int64 = -1

// Message is the Phoenix wire envelope:
//
//	{"topic": string, "event": string, "payload": any, "ref": int64|null}
type Message struct {
	Topic   string
	Event   string
	Payload interface{}
	Ref     int64
}

type wireMessage struct {
	Topic   string      `json:"topic"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	Ref     *int64      `json:"ref"`
}

// MarshalJSON encodes the envelope, mapping NoRef back to null.
func (m *Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Topic:   m.Topic,
		Event:   m.Event,
		Payload: m.Payload,
	}
	if m.Ref != NoRef {
		ref := m.Ref
		w.Ref = &ref
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the envelope, mapping a null ref to NoRef.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Topic = w.Topic
	m.Event = w.Event
	m.Payload = w.Payload
	if w.Ref != nil {
		m.Ref = *w.Ref
	} else {
		m.Ref = NoRef
	}
	return nil
}
