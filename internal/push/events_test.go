package push

import (
	"testing"

	"github.com/rmarinho/convo/internal/bus"
)

func TestParseFrameNewMessage(t *testing.T) {
	data := []byte(`{"type":"new_message","message":{"id":"m1","conversation_id":"c1","sender_id":"u2","receiver_id":"u1","content":"hey","timestamp":1700000000000}}`)
	kind, payload, err := ParseFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if kind != bus.KindPushNewMessage {
		t.Fatalf("kind = %s", kind)
	}
	p, ok := payload.(*NewMessage)
	if !ok {
		t.Fatalf("payload type = %T", payload)
	}
	if p.Message.ID != "m1" || p.Message.Content != "hey" {
		t.Fatalf("message = %+v", p.Message)
	}
}

func TestParseFrameRecalled(t *testing.T) {
	data := []byte(`{"type":"message_recalled","message_id":"m1","conversation_id":"c1","recalled_by":"u2","recall_type":"hard"}`)
	kind, payload, err := ParseFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if kind != bus.KindPushRecalled {
		t.Fatalf("kind = %s", kind)
	}
	p := payload.(*Recalled)
	if p.MessageID != "m1" || p.RecallType != "hard" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestParseFramePresence(t *testing.T) {
	for frameType, want := range map[string]string{
		"user_online":        bus.KindPushOnline,
		"user_offline":       bus.KindPushOffline,
		"user_status_change": bus.KindPushStatusChange,
	} {
		kind, payload, err := ParseFrame([]byte(`{"type":"` + frameType + `","user_id":"u2","is_online":true}`))
		if err != nil {
			t.Fatalf("%s: %v", frameType, err)
		}
		if kind != want {
			t.Fatalf("%s: kind = %s, want %s", frameType, kind, want)
		}
		if payload.(*UserStatus).UserID != "u2" {
			t.Fatalf("%s: payload = %+v", frameType, payload)
		}
	}
}

func TestParseFrameUnknownType(t *testing.T) {
	if _, _, err := ParseFrame([]byte(`{"type":"server_gossip"}`)); err == nil {
		t.Fatal("expected error for unknown frame type")
	}
}

func TestParseFrameMalformed(t *testing.T) {
	if _, _, err := ParseFrame([]byte(`{`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}
