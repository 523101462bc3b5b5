package p2p

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
)

func TestEventWireRoundtrip(t *testing.T) {
	var reqID engine.RequestID
	reqID[0], reqID[31] = 0x11, 0x22

	events := []engine.Event{
		engine.BatchOpened{ID: 3},
		engine.BatchClosed{ID: 3},
		engine.PausedSet{Paused: true},
		engine.OrderSubmitted{
			Submitter: common.HexToAddress("0x2000000000000000000000000000000000000002"),
			OrderID:   7,
			BatchID:   3,
			IsAsk:     true,
		},
		engine.DecryptionRequested{RequestID: reqID, BatchID: 3},
		engine.DecryptionCompleted{RequestID: reqID, BatchID: 3, AskVolume: 100, BidVolume: 40},
	}

	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("encode %s: %v", ev.Name(), err)
		}
		back, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("decode %s: %v", ev.Name(), err)
		}
		if back != ev {
			t.Fatalf("roundtrip %s: got %+v, want %+v", ev.Name(), back, ev)
		}
	}
}

func TestDecodeRejectsUnknownEvent(t *testing.T) {
	data, err := gobEncode(EventWire{Name: "bogus_event"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeEvent(data); err == nil {
		t.Fatal("unknown event name accepted")
	}
}
