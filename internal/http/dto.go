package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

// entryPayload is the wire shape for creating and updating entries.
// Amounts travel as decimal strings so nothing rounds through float64.
type entryPayload struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Mode     string `json:"mode"`
	Category string `json:"category,omitempty"`

	Frequency string `json:"frequency,omitempty"`
	Interval  int    `json:"interval,omitempty"`

	StartDate       string `json:"start_date"`
	NextPaymentDate string `json:"next_payment_date,omitempty"`

	Active       *bool `json:"active,omitempty"`
	ReminderDays *int  `json:"reminder_days,omitempty"`

	IsInstallment         bool   `json:"is_installment,omitempty"`
	TotalInstallments     int    `json:"total_installments,omitempty"`
	CompletedInstallments int    `json:"completed_installments,omitempty"`
	InstallmentStart      string `json:"installment_start,omitempty"`
	InstallmentEnd        string `json:"installment_end,omitempty"`

	TotalOwed        string `json:"total_owed,omitempty"`
	RemainingBalance string `json:"remaining_balance,omitempty"`
	Creditor         string `json:"creditor,omitempty"`
	APR              string `json:"apr,omitempty"`

	TargetAmount string `json:"target_amount,omitempty"`
	CurrentSaved string `json:"current_saved,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	TargetDate   string `json:"target_date,omitempty"`

	CardID     string `json:"card_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

// entryDefaults supplies the values a payload may omit: fresh creates
// start active with the configured reminder window, updates inherit
// whatever the stored entry had.
type entryDefaults struct {
	Active       bool
	ReminderDays int
}

// toEntry builds a domain entry from the payload. Validation proper
// happens in the service; this only rejects values that cannot be
// represented at all.
func (p entryPayload) toEntry(defaults entryDefaults) (core.Entry, error) {
	amount, err := core.MoneyFromString(p.Amount, p.Currency)
	if err != nil {
		return core.Entry{}, err
	}

	e := core.Entry{
		Name:     sanitizeInput(p.Name),
		Amount:   amount,
		Mode:     core.PaymentMode(strings.ToLower(strings.TrimSpace(p.Mode))),
		Category: sanitizeInput(p.Category),
		Interval: p.Interval,

		Active:       defaults.Active,
		ReminderDays: defaults.ReminderDays,

		IsInstallment:         p.IsInstallment,
		TotalInstallments:     p.TotalInstallments,
		CompletedInstallments: p.CompletedInstallments,

		Creditor:  sanitizeInput(p.Creditor),
		Recipient: sanitizeInput(p.Recipient),
	}

	if p.Frequency != "" {
		freq, err := core.ParseFrequency(p.Frequency)
		if err != nil {
			return core.Entry{}, err
		}
		e.Frequency = freq
	}
	if e.Interval == 0 && e.Mode != core.ModeOneTime {
		e.Interval = 1
	}
	if p.Active != nil {
		e.Active = *p.Active
	}
	if p.ReminderDays != nil {
		e.ReminderDays = *p.ReminderDays
	}

	if e.StartDate, err = parseDate(p.StartDate); err != nil {
		return core.Entry{}, err
	}
	if p.NextPaymentDate != "" {
		if e.NextPaymentDate, err = parseDate(p.NextPaymentDate); err != nil {
			return core.Entry{}, err
		}
	}
	if e.InstallmentStart, err = parseDatePtr(p.InstallmentStart); err != nil {
		return core.Entry{}, err
	}
	if e.InstallmentEnd, err = parseDatePtr(p.InstallmentEnd); err != nil {
		return core.Entry{}, err
	}
	if e.TargetDate, err = parseDatePtr(p.TargetDate); err != nil {
		return core.Entry{}, err
	}

	if e.TotalOwed, err = parseDecimalField("total_owed", p.TotalOwed); err != nil {
		return core.Entry{}, err
	}
	if e.RemainingBalance, err = parseDecimalField("remaining_balance", p.RemainingBalance); err != nil {
		return core.Entry{}, err
	}
	if e.TargetAmount, err = parseDecimalField("target_amount", p.TargetAmount); err != nil {
		return core.Entry{}, err
	}
	if e.CurrentSaved, err = parseDecimalField("current_saved", p.CurrentSaved); err != nil {
		return core.Entry{}, err
	}
	if p.APR != "" {
		apr, err := parseDecimalField("apr", p.APR)
		if err != nil {
			return core.Entry{}, err
		}
		e.APR = &apr
	}

	if e.CardID, err = parseUUIDPtr("card_id", p.CardID); err != nil {
		return core.Entry{}, err
	}
	if e.CategoryID, err = parseUUIDPtr("category_id", p.CategoryID); err != nil {
		return core.Entry{}, err
	}

	return e, nil
}

// entryView is the wire shape of a stored entry.
type entryView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Mode     string `json:"mode"`
	Category string `json:"category,omitempty"`

	Frequency string `json:"frequency,omitempty"`
	Interval  int    `json:"interval,omitempty"`

	StartDate       string  `json:"start_date"`
	NextPaymentDate string  `json:"next_payment_date"`
	LastPaymentDate *string `json:"last_payment_date,omitempty"`

	Active       bool   `json:"active"`
	ReminderDays int    `json:"reminder_days"`
	State        string `json:"state"`

	IsInstallment         bool    `json:"is_installment,omitempty"`
	TotalInstallments     int     `json:"total_installments,omitempty"`
	CompletedInstallments int     `json:"completed_installments,omitempty"`
	InstallmentStart      *string `json:"installment_start,omitempty"`
	InstallmentEnd        *string `json:"installment_end,omitempty"`

	TotalOwed        string  `json:"total_owed,omitempty"`
	RemainingBalance string  `json:"remaining_balance,omitempty"`
	Creditor         string  `json:"creditor,omitempty"`
	APR              string  `json:"apr,omitempty"`

	TargetAmount string  `json:"target_amount,omitempty"`
	CurrentSaved string  `json:"current_saved,omitempty"`
	Recipient    string  `json:"recipient,omitempty"`
	TargetDate   *string `json:"target_date,omitempty"`

	CardID     string `json:"card_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

func newEntryView(e core.Entry) entryView {
	v := entryView{
		ID:       e.ID.String(),
		Name:     e.Name,
		Amount:   e.Amount.Amount.String(),
		Currency: e.Amount.Currency,
		Mode:     string(e.Mode),
		Category: e.Category,

		Frequency: string(e.Frequency),
		Interval:  e.Interval,

		StartDate:       fmtDate(e.StartDate),
		NextPaymentDate: fmtDate(e.NextPaymentDate),
		LastPaymentDate: fmtDatePtr(e.LastPaymentDate),

		Active:       e.Active,
		ReminderDays: e.ReminderDays,
		State:        string(schedule.EntryState(e)),

		IsInstallment:         e.IsInstallment,
		TotalInstallments:     e.TotalInstallments,
		CompletedInstallments: e.CompletedInstallments,
		InstallmentStart:      fmtDatePtr(e.InstallmentStart),
		InstallmentEnd:        fmtDatePtr(e.InstallmentEnd),

		Creditor:   e.Creditor,
		Recipient:  e.Recipient,
		TargetDate: fmtDatePtr(e.TargetDate),
	}

	if e.Mode == core.ModeDebt {
		v.TotalOwed = e.TotalOwed.String()
		v.RemainingBalance = e.RemainingBalance.String()
		if e.APR != nil {
			v.APR = e.APR.String()
		}
	}
	if e.Mode == core.ModeSavings {
		v.TargetAmount = e.TargetAmount.String()
		v.CurrentSaved = e.CurrentSaved.String()
	}
	if e.CardID != nil {
		v.CardID = e.CardID.String()
	}
	if e.CategoryID != nil {
		v.CategoryID = e.CategoryID.String()
	}
	return v
}

type paymentView struct {
	ID         string `json:"id"`
	EntryID    string `json:"entry_id"`
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	RecordedAt string `json:"recorded_at"`
}

func newPaymentView(p storage.Payment) paymentView {
	return paymentView{
		ID:         p.ID.String(),
		EntryID:    p.EntryID.String(),
		Date:       fmtDate(p.Date),
		Amount:     p.Amount.Amount.String(),
		Currency:   p.Amount.Currency,
		RecordedAt: p.RecordedAt.UTC().Format(time.RFC3339),
	}
}

// paymentResultView reports what recording a payment changed.
type paymentResultView struct {
	Payment         paymentView `json:"payment"`
	Entry           entryView   `json:"entry"`
	NextPaymentDate *string     `json:"next_payment_date"`
	Completed       bool        `json:"completed"`
	State           string      `json:"state"`
}

func newPaymentResultView(res services.RecordPaymentResult) paymentResultView {
	return paymentResultView{
		Payment:         newPaymentView(res.Payment),
		Entry:           newEntryView(res.Entry),
		NextPaymentDate: fmtDatePtr(res.Delta.NextPaymentDate),
		Completed:       res.Delta.Completed,
		State:           string(res.Delta.State),
	}
}

type statusView struct {
	Entry        entryView `json:"entry"`
	State        string    `json:"state"`
	Status       string    `json:"status"`
	DueDate      string    `json:"due_date"`
	DaysUntilDue int       `json:"days_until_due"`
	Paid         bool      `json:"paid"`
}

func newStatusView(view services.EntryStatusView) statusView {
	return statusView{
		Entry:        newEntryView(view.Entry),
		State:        string(view.State),
		Status:       string(view.Status),
		DueDate:      fmtDate(view.DueDate),
		DaysUntilDue: view.Days,
		Paid:         view.Paid,
	}
}

type eventView struct {
	EntryID          string `json:"entry_id"`
	Name             string `json:"name"`
	Mode             string `json:"mode"`
	Date             string `json:"date"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	OriginalAmount   string `json:"original_amount"`
	OriginalCurrency string `json:"original_currency"`
	Converted        bool   `json:"converted"`
	Status           string `json:"status"`
	Paid             bool   `json:"paid"`
}

func newEventView(ev schedule.Event) eventView {
	return eventView{
		EntryID:          ev.EntryID.String(),
		Name:             ev.Name,
		Mode:             string(ev.Mode),
		Date:             fmtDate(ev.Date),
		Amount:           ev.Amount.Amount.String(),
		Currency:         ev.Amount.Currency,
		OriginalAmount:   ev.Original.Amount.String(),
		OriginalCurrency: ev.Original.Currency,
		Converted:        ev.Converted,
		Status:           string(ev.Status),
		Paid:             ev.Paid,
	}
}

type entryErrorView struct {
	EntryID string `json:"entry_id"`
	Error   string `json:"error"`
}

func newEntryErrorViews(errs []schedule.EntryError) []entryErrorView {
	if len(errs) == 0 {
		return nil
	}
	views := make([]entryErrorView, 0, len(errs))
	for _, e := range errs {
		views = append(views, entryErrorView{EntryID: e.EntryID.String(), Error: e.Err.Error()})
	}
	return views
}

type calendarResponse struct {
	Start    string           `json:"start"`
	End      string           `json:"end"`
	Currency string           `json:"currency,omitempty"`
	Events   []eventView      `json:"events"`
	Errors   []entryErrorView `json:"errors,omitempty"`
}

type summaryResponse struct {
	Year             int              `json:"year"`
	Month            int              `json:"month"`
	Currency         string           `json:"currency"`
	TotalDue         string           `json:"total_due"`
	TotalPaid        string           `json:"total_paid"`
	TotalRemaining   string           `json:"total_remaining"`
	Count            int              `json:"count"`
	PaidCount        int              `json:"paid_count"`
	UnconvertedCount int              `json:"unconverted_count"`
	Errors           []entryErrorView `json:"errors,omitempty"`
}

// debtPayload is an explicit payoff-planner input, for callers that want
// a what-if plan over debts not stored as entries.
type debtPayload struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Balance        string `json:"balance"`
	APR            string `json:"apr,omitempty"`
	MinimumPayment string `json:"minimum_payment"`
	Currency       string `json:"currency,omitempty"`
}

func (p debtPayload) toDebt() (core.Debt, error) {
	d := core.Debt{
		Name:     sanitizeInput(p.Name),
		Currency: strings.ToUpper(strings.TrimSpace(p.Currency)),
	}
	var err error
	if p.ID != "" {
		if d.ID, err = uuid.Parse(p.ID); err != nil {
			return core.Debt{}, fmt.Errorf("invalid debt id %q", p.ID)
		}
	} else {
		d.ID = uuid.New()
	}
	if d.Balance, err = parseDecimalField("balance", p.Balance); err != nil {
		return core.Debt{}, err
	}
	if d.APR, err = parseDecimalField("apr", p.APR); err != nil {
		return core.Debt{}, err
	}
	if d.MinimumPayment, err = parseDecimalField("minimum_payment", p.MinimumPayment); err != nil {
		return core.Debt{}, err
	}
	return d, nil
}

type planRequest struct {
	Strategy     string        `json:"strategy,omitempty"`
	ExtraMonthly string        `json:"extra_monthly,omitempty"`
	AsOf         string        `json:"as_of,omitempty"`
	Debts        []debtPayload `json:"debts,omitempty"`
}

type savingsProjectionView struct {
	EntryID              string  `json:"entry_id"`
	Name                 string  `json:"name"`
	Target               string  `json:"target"`
	Saved                string  `json:"saved"`
	Remaining            string  `json:"remaining"`
	Currency             string  `json:"currency"`
	RequiredContribution string  `json:"required_contribution"`
	AchievementDate      *string `json:"achievement_date"`
	Unreachable          bool    `json:"unreachable"`
	MilestonesReached    []int   `json:"milestones_reached"`
}

func fmtDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func fmtDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtDate(*t)
	return &s
}

func parseDatePtr(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseDecimalField parses a non-negative decimal string; empty means
// zero.
func parseDecimalField(name, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", name, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s %q: must not be negative", name, s)
	}
	return d, nil
}

func parseUUIDPtr(name, s string) (*uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, s)
	}
	return &id, nil
}
