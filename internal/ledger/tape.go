package ledger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Tape accumulates the public events of one hand in publish order. Each
// event is stored as a base64 protobuf Struct {event, data}.
type Tape struct {
	items []EventItem
}

func (t *Tape) Len() int { return len(t.items) }

// Append encodes one event. data must be JSON-marshalable.
func (t *Tape) Append(seq uint64, event string, data any) error {
	item, err := EncodeEvent(seq, event, data)
	if err != nil {
		return err
	}
	t.items = append(t.items, item)
	return nil
}

// Items returns the recorded events and resets the tape.
func (t *Tape) Items() []EventItem {
	items := t.items
	t.items = nil
	return items
}

func EncodeEvent(seq uint64, event string, data any) (EventItem, error) {
	value, err := toProtoValue(data)
	if err != nil {
		return EventItem{}, fmt.Errorf("encode %s: %w", event, err)
	}
	envelope := &structpb.Struct{Fields: map[string]*structpb.Value{
		"event": structpb.NewStringValue(event),
		"data":  value,
	}}
	raw, err := proto.Marshal(envelope)
	if err != nil {
		return EventItem{}, fmt.Errorf("encode %s: %w", event, err)
	}
	ts := time.Now().UnixMilli()
	return EventItem{
		Seq:         seq,
		EventType:   event,
		EnvelopeB64: base64.StdEncoding.EncodeToString(raw),
		ServerTsMs:  &ts,
	}, nil
}

// DecodeEvent reverses EncodeEvent.
func DecodeEvent(item EventItem) (string, any, error) {
	raw, err := base64.StdEncoding.DecodeString(item.EnvelopeB64)
	if err != nil {
		return "", nil, err
	}
	var envelope structpb.Struct
	if err := proto.Unmarshal(raw, &envelope); err != nil {
		return "", nil, err
	}
	fields := envelope.GetFields()
	name := fields["event"].GetStringValue()
	var data any
	if v, ok := fields["data"]; ok {
		data = v.AsInterface()
	}
	return name, data, nil
}

// toProtoValue goes through JSON so that struct tags decide field names.
func toProtoValue(data any) (*structpb.Value, error) {
	if data == nil {
		return structpb.NewNullValue(), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}
