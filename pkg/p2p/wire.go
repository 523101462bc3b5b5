package p2p

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
)

// EventWire is the gossip envelope: the event name selects the concrete
// payload type on the receiving side.
type EventWire struct {
	Name    string
	Payload []byte // gob-encoded concrete event
}

func EncodeEvent(ev engine.Event) ([]byte, error) {
	payload, err := gobEncode(ev)
	if err != nil {
		return nil, err
	}
	return gobEncode(EventWire{Name: ev.Name(), Payload: payload})
}

func DecodeEvent(data []byte) (engine.Event, error) {
	var w EventWire
	if err := gobDecode(data, &w); err != nil {
		return nil, err
	}
	ev, err := eventForName(w.Name)
	if err != nil {
		return nil, err
	}
	if err := gobDecode(w.Payload, ev); err != nil {
		return nil, err
	}
	return deref(ev), nil
}

// eventForName returns a pointer to a zero value of the concrete event type
// so gob can decode into it.
func eventForName(name string) (any, error) {
	switch name {
	case engine.OwnershipTransferred{}.Name():
		return &engine.OwnershipTransferred{}, nil
	case engine.ProviderAdded{}.Name():
		return &engine.ProviderAdded{}, nil
	case engine.ProviderRemoved{}.Name():
		return &engine.ProviderRemoved{}, nil
	case engine.PausedSet{}.Name():
		return &engine.PausedSet{}, nil
	case engine.CooldownSet{}.Name():
		return &engine.CooldownSet{}, nil
	case engine.BatchOpened{}.Name():
		return &engine.BatchOpened{}, nil
	case engine.BatchClosed{}.Name():
		return &engine.BatchClosed{}, nil
	case engine.OrderSubmitted{}.Name():
		return &engine.OrderSubmitted{}, nil
	case engine.DecryptionRequested{}.Name():
		return &engine.DecryptionRequested{}, nil
	case engine.DecryptionCompleted{}.Name():
		return &engine.DecryptionCompleted{}, nil
	default:
		return nil, fmt.Errorf("p2p: unknown event %q", name)
	}
}

func deref(v any) engine.Event {
	switch e := v.(type) {
	case *engine.OwnershipTransferred:
		return *e
	case *engine.ProviderAdded:
		return *e
	case *engine.ProviderRemoved:
		return *e
	case *engine.PausedSet:
		return *e
	case *engine.CooldownSet:
		return *e
	case *engine.BatchOpened:
		return *e
	case *engine.BatchClosed:
		return *e
	case *engine.OrderSubmitted:
		return *e
	case *engine.DecryptionRequested:
		return *e
	case *engine.DecryptionCompleted:
		return *e
	}
	return nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
