// Package reconcile implements the statement reconciliation pipeline:
// record normalization, duplicate detection, category resolution, balance
// validation and the coordinator that drives them over a batch.
package reconcile

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// notesDelimiter joins the optional descriptive fields into Notes.
const notesDelimiter = " | "

var isoDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// genericDateLayouts are tried, in order, when the record's date is not
// already ISO formatted. Day-first layouts come first; Indian and UK bank
// exports are day-first.
var genericDateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"2006/01/02",
	time.RFC3339,
}

// Normalizer converts raw parser records into canonical transactions.
// It is a pure transform; every failure is a typed rejection the caller
// records and moves past.
type Normalizer struct {
	// MinYear and MaxYear bound the years accepted from generic date
	// parsing, guarding against parser OCR noise like year 0203.
	MinYear int
	MaxYear int
}

// NewNormalizer creates a Normalizer with the given sane-year bounds.
func NewNormalizer(minYear, maxYear int) *Normalizer {
	return &Normalizer{MinYear: minYear, MaxYear: maxYear}
}

// Normalize validates and converts one raw record. index is the record's
// position in the batch, used only for rejection messages.
func (n *Normalizer) Normalize(rec domain.RawRecord, index int) (*domain.NormalizedTransaction, *domain.RecordRejection) {
	// Amounts: parse failures default to zero, then mutual exclusivity is
	// enforced. A record with neither side is malformed.
	debit := decimalField(rec, "debit")
	credit := decimalField(rec, "credit")

	if debit.IsZero() && credit.IsZero() {
		return nil, &domain.RecordRejection{
			Index:  index,
			Reason: domain.RejectInvalidAmount,
			Detail: "both debit and credit are zero or unparseable",
		}
	}

	// Credit wins when both sides carry a value. A negative amount on the
	// only populated side is taken as its absolute value on that side, so
	// the accepted amount is always positive.
	direction := domain.DirectionDebit
	amount := debit
	if credit.IsPositive() || (debit.IsZero() && !credit.IsZero()) {
		direction = domain.DirectionCredit
		amount = credit
	}
	amount = amount.Abs()

	title := strings.TrimSpace(stringField(rec, "description"))
	if title == "" {
		title = strings.TrimSpace(stringField(rec, "narration"))
	}
	if title == "" {
		return nil, &domain.RecordRejection{
			Index:  index,
			Reason: domain.RejectMissingTitle,
			Detail: "no description or narration",
		}
	}

	date, ok := n.resolveDate(rec)
	if !ok {
		return nil, &domain.RecordRejection{
			Index:  index,
			Reason: domain.RejectInvalidDate,
			Detail: fmt.Sprintf("no usable date in %q / %q", stringField(rec, "date"), stringField(rec, "date_iso")),
		}
	}

	tx := &domain.NormalizedTransaction{
		Title:     title,
		Amount:    amount,
		Direction: direction,
		Date:      date,
		Notes:     joinNotes(rec, "store", "commodity", "remarks"),

		PersonName:    strings.TrimSpace(stringField(rec, "personName")),
		UPIID:         strings.TrimSpace(stringField(rec, "upiId")),
		AccountNumber: strings.TrimSpace(stringField(rec, "accountNumber")),
		BankCode:      strings.TrimSpace(stringField(rec, "bankCode")),
		BankReference: strings.TrimSpace(stringField(rec, "transactionId")),
		Branch:        strings.TrimSpace(stringField(rec, "branch")),

		Raw: stringField(rec, "raw"),
	}

	if bal, ok := optionalDecimalField(rec, "balance"); ok {
		tx.BalanceAfter = &bal
	}

	// A category already present on the record is a manual override and is
	// never revisited by later resolution stages.
	if cat := strings.TrimSpace(stringField(rec, "categoryId")); cat != "" {
		tx.CategoryID = &cat
		tx.ManualCategory = true
	}

	tx.FinancialCategory = defaultFinancialCategory(direction)

	return tx, nil
}

// resolveDate applies the date resolution order: date_iso, a literal
// YYYY-MM-DD date, a bounded generic parse, then an ISO substring match.
func (n *Normalizer) resolveDate(rec domain.RawRecord) (time.Time, bool) {
	if iso := strings.TrimSpace(stringField(rec, "date_iso")); len(iso) >= 10 {
		if d, err := time.Parse(domain.DateFormat, iso[:10]); err == nil {
			return d, true
		}
	}

	raw := strings.TrimSpace(stringField(rec, "date"))
	if raw == "" {
		return time.Time{}, false
	}

	if len(raw) == 10 {
		if d, err := time.Parse(domain.DateFormat, raw); err == nil {
			return d, true
		}
	}

	for _, layout := range genericDateLayouts {
		d, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if d.Year() >= n.MinYear && d.Year() <= n.MaxYear {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}

	// Last resort: an ISO date buried in surrounding text.
	if m := isoDatePattern.FindString(raw); m != "" {
		if d, err := time.Parse(domain.DateFormat, m); err == nil {
			return d, true
		}
	}

	return time.Time{}, false
}

func defaultFinancialCategory(dir domain.Direction) domain.FinancialCategory {
	if dir == domain.DirectionCredit {
		return domain.FinancialIncome
	}
	return domain.FinancialExpense
}

// joinNotes concatenates the non-empty values of the given keys.
func joinNotes(rec domain.RawRecord, keys ...string) string {
	var parts []string
	for _, k := range keys {
		if v := strings.TrimSpace(stringField(rec, k)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, notesDelimiter)
}

// stringField reads a field as a string, tolerating absent or non-string
// values by returning "".
func stringField(rec domain.RawRecord, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return ""
	}
}

// decimalField reads a field as a decimal amount, defaulting to zero when
// the value is absent or unparseable.
func decimalField(rec domain.RawRecord, key string) decimal.Decimal {
	d, _ := optionalDecimalField(rec, key)
	return d
}

func optionalDecimalField(rec domain.RawRecord, key string) (decimal.Decimal, bool) {
	v, ok := rec[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(val, ",", ""))
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}
