package amqp

import (
	"testing"
)

func TestNoticeMessageRoundTrip(t *testing.T) {
	msg := NewNoticeMessage("> Transaction recorded")
	if msg.ID == "" {
		t.Fatal("expected a generated message ID")
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("expected a timestamp")
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	decoded, err := NoticeMessageFromJSON(data)
	if err != nil {
		t.Fatalf("NoticeMessageFromJSON failed: %v", err)
	}
	if decoded.ID != msg.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, msg.ID)
	}
	if decoded.Text != "> Transaction recorded" {
		t.Errorf("Text = %q", decoded.Text)
	}
}

func TestNoticeMessageFromJSONRejectsGarbage(t *testing.T) {
	if _, err := NoticeMessageFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestNoticeMessagesGetDistinctIDs(t *testing.T) {
	a := NewNoticeMessage("a")
	b := NewNoticeMessage("b")
	if a.ID == b.ID {
		t.Errorf("expected distinct IDs, both %q", a.ID)
	}
}
