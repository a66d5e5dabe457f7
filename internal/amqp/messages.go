// Package amqp connects the API server and the export worker through a
// durable RabbitMQ queue.
package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"expenseflow/internal/core"
)

// ExpenseExportMessage announces that an expense reached a terminal
// state. It carries only the ID and status; the worker reloads the full
// record from storage before appending to the ledger.
type ExpenseExportMessage struct {
	ID        string      `json:"id"`
	Status    core.Status `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewExpenseExportMessage(id string, status core.Status) *ExpenseExportMessage {
	return &ExpenseExportMessage{
		ID:        id,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ExpenseExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseExportMessageFromJSON(data []byte) (*ExpenseExportMessage, error) {
	var msg ExpenseExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("export message without expense id")
	}
	return &msg, nil
}
