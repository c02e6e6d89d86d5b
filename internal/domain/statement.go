package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StatementMetadata is the self-declared summary the parser extracted from
// a statement header or footer. Every field is optional; absence must not
// block an import.
type StatementMetadata struct {
	AccountNumber string `json:"accountNumber,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	Branch        string `json:"branch,omitempty"`
	AccountHolder string `json:"accountHolder,omitempty"`

	OpeningBalance *decimal.Decimal `json:"openingBalance,omitempty"`
	ClosingBalance *decimal.Decimal `json:"closingBalance,omitempty"`

	// FromDate and ToDate bound the statement period (YYYY-MM-DD).
	FromDate string `json:"fromDate,omitempty"`
	ToDate   string `json:"toDate,omitempty"`

	DeclaredCredits *decimal.Decimal `json:"totalCredits,omitempty"`
	DeclaredDebits  *decimal.Decimal `json:"totalDebits,omitempty"`

	DeclaredTransactionCount *int `json:"transactionCount,omitempty"`
}

// DateRange resolves the statement period, widening it by pad days on each
// side. When the metadata carries no usable period it falls back to the
// given default range.
func (m *StatementMetadata) DateRange(pad int, fallbackFrom, fallbackTo time.Time) (time.Time, time.Time) {
	from, to := fallbackFrom, fallbackTo
	if m != nil {
		if d, err := time.Parse(DateFormat, m.FromDate); err == nil {
			from = d
		}
		if d, err := time.Parse(DateFormat, m.ToDate); err == nil {
			to = d
		}
	}
	return from.AddDate(0, 0, -pad), to.AddDate(0, 0, pad)
}

// ParseResult is the payload the upstream document-parsing service returns
// for one statement file.
type ParseResult struct {
	Transactions []RawRecord        `json:"transactions"`
	Metadata     *StatementMetadata `json:"metadata,omitempty"`
	Count        int                `json:"count"`

	// TempFiles are storage keys for intermediate artifacts the parser
	// uploaded. They are owned by the provenance document and deleted once
	// the import no longer needs them.
	TempFiles []string `json:"tempFiles,omitempty"`

	// SourceFilename is the original upload name, used for best-effort
	// bank-code inference.
	SourceFilename string `json:"sourceFilename,omitempty"`
}

// knownBankCodes are the institution codes we can recognise in a filename.
var knownBankCodes = []string{
	"HDFC", "ICICI", "SBI", "AXIS", "KOTAK", "YES", "IDFC", "PNB",
	"BARCLAYS", "HSBC", "CANARA", "BOB", "INDUSIND", "FEDERAL",
}

// InferBankCode makes a best-effort guess of the issuing bank from a
// statement filename. Returns "" when nothing matches.
func InferBankCode(filename string) string {
	upper := strings.ToUpper(filename)
	for _, code := range knownBankCodes {
		if strings.Contains(upper, code) {
			return code
		}
	}
	return ""
}
