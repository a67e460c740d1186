package amqp

import (
	"encoding/json"
	"time"
)

// Ledger event actions.
const (
	ActionPosted   = "posted"
	ActionUpdated  = "updated"
	ActionReversed = "reversed"
)

// LedgerEventMessage announces a balance-affecting mutation. It carries
// identifiers and the signed delta only; consumers fetch the full
// transaction from storage when they need it.
type LedgerEventMessage struct {
	TransactionID string    `json:"transaction_id"`
	OwnerID       string    `json:"owner_id"`
	AccountID     string    `json:"account_id"`
	DeltaCents    int64     `json:"delta_cents"`
	Action        string    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(transactionID, ownerID, accountID string, deltaCents int64, action string) *LedgerEventMessage {
	return &LedgerEventMessage{
		TransactionID: transactionID,
		OwnerID:       ownerID,
		AccountID:     accountID,
		DeltaCents:    deltaCents,
		Action:        action,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON creates a message from JSON bytes
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
