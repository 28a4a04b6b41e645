package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"expense-predictor/internal/core"
)

// TransactionRecordedMessage announces a row appended to the ledger log.
// It carries the full row so consumers can mirror it without reading the
// database.
type TransactionRecordedMessage struct {
	Ref         string    `json:"ref"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	Amount      string    `json:"amount"`
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewTransactionRecordedMessage(ref string, tx core.Transaction) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		Ref:         ref,
		Date:        tx.Date.String(),
		Description: tx.Description,
		Amount:      tx.Amount.String(),
		Category:    tx.Category,
		Timestamp:   time.Now(),
	}
}

// Transaction rebuilds the recorded transaction.
func (m *TransactionRecordedMessage) Transaction() (core.Transaction, error) {
	date, err := core.ParseDate(m.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, m.Amount)
	}
	tx := core.Transaction{Date: date, Description: m.Description, Amount: amount, Category: m.Category}
	return tx, tx.Validate()
}

// ToJSON converts the message to JSON bytes
func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
