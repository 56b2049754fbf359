package feed

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ChangeEvent is one document change arriving on the feed.
type ChangeEvent struct {
	Collection string         `json:"collection" msgpack:"collection"`
	Document   map[string]any `json:"document" msgpack:"document"`
}

// Decoder turns a raw feed payload into a ChangeEvent.
type Decoder func(payload []byte) (ChangeEvent, error)

// NewDecoder returns the decoder for the configured payload encoding.
func NewDecoder(encoding string) (Decoder, error) {
	switch encoding {
	case "json":
		return decodeJSON, nil
	case "msgpack":
		return decodeMsgpack, nil
	default:
		return nil, fmt.Errorf("unknown feed encoding: %s", encoding)
	}
}

func decodeJSON(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode json event: %w", err)
	}
	return ev, nil
}

func decodeMsgpack(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := msgpack.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode msgpack event: %w", err)
	}
	return ev, nil
}
