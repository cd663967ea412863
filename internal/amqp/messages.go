package amqp

import (
	"encoding/json"
	"time"
)

// SyncRequestMessage asks the worker to run a bank sync for one owner.
// It carries only the owner id; the worker loads the link and pulls the
// snapshot itself, so a stale message can never import stale data.
type SyncRequestMessage struct {
	OwnerID   string    `json:"owner_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSyncRequestMessage(ownerID string) *SyncRequestMessage {
	return &SyncRequestMessage{
		OwnerID:   ownerID,
		Timestamp: time.Now(),
	}
}

func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
