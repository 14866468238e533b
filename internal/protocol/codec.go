package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformedFrame is returned when a frame is not a JSON envelope.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownEvent is returned for event names outside the inbound set.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrInvalidPayload is returned when the payload does not match the event.
	ErrInvalidPayload = errors.New("invalid payload")
)

var validate = validator.New()

// Envelope is the wire framing shared by both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode parses one inbound frame into its typed variant.
//
// Postcondition: Returns a validated Inbound, or an error wrapping
// ErrMalformedFrame, ErrUnknownEvent, or ErrInvalidPayload.
func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Event {
	case EventMove:
		var m Move
		if err := decodeData(env.Data, &m); err != nil {
			return nil, err
		}
		if err := validate.Struct(m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
		}
		return m, nil
	case EventEnterCabin:
		cabin, err := decodeCabin(env)
		if err != nil {
			return nil, err
		}
		return EnterCabin{Cabin: cabin}, nil
	case EventLeaveCabin:
		cabin, err := decodeCabin(env)
		if err != nil {
			return nil, err
		}
		return LeaveCabin{Cabin: cabin}, nil
	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decodeData(data json.RawMessage, into any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func decodeCabin(env Envelope) (string, error) {
	var name string
	if err := decodeData(env.Data, &name); err != nil {
		return "", err
	}
	// Both cabin variants share the same constraints.
	if err := validate.Struct(EnterCabin{Cabin: name}); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
	}
	return name, nil
}

// Encode frames an outbound message.
func Encode(msg Outbound) ([]byte, error) {
	data, err := json.Marshal(msg.payload())
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msg.EventName(), err)
	}
	frame, err := json.Marshal(Envelope{Event: msg.EventName(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", msg.EventName(), err)
	}
	return frame, nil
}

// EncodeInbound frames a client to server message. Clients and tests use it
// to produce frames the server accepts.
func EncodeInbound(msg Inbound) ([]byte, error) {
	var payload any
	switch m := msg.(type) {
	case Move:
		payload = m
	case EnterCabin:
		payload = m.Cabin
	case LeaveCabin:
		payload = m.Cabin
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, msg)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msg.EventName(), err)
	}
	return json.Marshal(Envelope{Event: msg.EventName(), Data: data})
}

// NewMove builds a Move from plain coordinates.
func NewMove(x, y, z float64) Move {
	return Move{X: &x, Y: &y, Z: &z}
}
