package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NoticeMessage carries one user-facing status line, such as
// "> Transaction recorded". The ID lets consumers deduplicate redeliveries.
type NoticeMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func NewNoticeMessage(text string) *NoticeMessage {
	return &NoticeMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: time.Now(),
	}
}

func (m *NoticeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func NoticeMessageFromJSON(data []byte) (*NoticeMessage, error) {
	var msg NoticeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
