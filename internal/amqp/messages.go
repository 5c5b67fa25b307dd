package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentRecordedMessage announces a freshly recorded payment. It carries
// identifiers and the amount as text; the export worker fetches the full
// payment and entry from the database before writing the sheet row.
type PaymentRecordedMessage struct {
	PaymentID uuid.UUID `json:"payment_id"`
	EntryID   uuid.UUID `json:"entry_id"`
	Date      string    `json:"date"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPaymentRecordedMessage builds a message for one recorded payment.
// The date travels as yyyy-mm-dd, matching the day-level schedule math.
func NewPaymentRecordedMessage(paymentID, entryID uuid.UUID, date time.Time, amount, currency string) *PaymentRecordedMessage {
	return &PaymentRecordedMessage{
		PaymentID: paymentID,
		EntryID:   entryID,
		Date:      date.Format(time.DateOnly),
		Amount:    amount,
		Currency:  currency,
		Timestamp: time.Now(),
	}
}

func (m *PaymentRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PaymentRecordedMessageFromJSON(data []byte) (*PaymentRecordedMessage, error) {
	var msg PaymentRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ReminderDueMessage is published for every entry the daily scan finds
// overdue or due soon. Downstream notifiers consume these; nothing in this
// codebase delivers them further.
type ReminderDueMessage struct {
	EntryID   uuid.UUID `json:"entry_id"`
	Name      string    `json:"name"`
	DueDate   string    `json:"due_date"`
	Status    string    `json:"status"`
	Days      int       `json:"days"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReminderDueMessage builds a reminder for an entry due on dueDate.
// Days counts from the scan date: negative means overdue.
func NewReminderDueMessage(entryID uuid.UUID, name string, dueDate time.Time, status string, days int) *ReminderDueMessage {
	return &ReminderDueMessage{
		EntryID:   entryID,
		Name:      name,
		DueDate:   dueDate.Format(time.DateOnly),
		Status:    status,
		Days:      days,
		Timestamp: time.Now(),
	}
}

func (m *ReminderDueMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReminderDueMessageFromJSON(data []byte) (*ReminderDueMessage, error) {
	var msg ReminderDueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
