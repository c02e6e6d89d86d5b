package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestImportResult_CleanResultSerializesEmptyCollections(t *testing.T) {
	out, err := json.Marshal(NewImportResult("doc-1"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	body := string(out)
	if !strings.Contains(body, `"errors":[]`) {
		t.Errorf("errors should serialize as [], got: %s", body)
	}
	if !strings.Contains(body, `"warnings":[]`) {
		t.Errorf("warnings should serialize as [], got: %s", body)
	}
	if strings.Contains(body, "null") {
		t.Errorf("clean result should carry no null collections: %s", body)
	}
}

func TestNormalizedTransaction_SidedAmounts(t *testing.T) {
	amount := decimal.RequireFromString("120.50")

	credit := &NormalizedTransaction{Amount: amount, Direction: DirectionCredit}
	if !credit.CreditAmount().Equal(amount) || !credit.DebitAmount().IsZero() {
		t.Errorf("credit sided amounts wrong: %s / %s", credit.CreditAmount(), credit.DebitAmount())
	}

	debit := &NormalizedTransaction{Amount: amount, Direction: DirectionDebit}
	if !debit.DebitAmount().Equal(amount) || !debit.CreditAmount().IsZero() {
		t.Errorf("debit sided amounts wrong: %s / %s", debit.CreditAmount(), debit.DebitAmount())
	}
}

func TestStatementMetadata_DateRange(t *testing.T) {
	fallbackFrom := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	fallbackTo := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("declared period padded", func(t *testing.T) {
		m := &StatementMetadata{FromDate: "2024-05-01", ToDate: "2024-05-31"}
		from, to := m.DateRange(3, fallbackFrom, fallbackTo)
		if got := from.Format(DateFormat); got != "2024-04-28" {
			t.Errorf("from = %s, want 2024-04-28", got)
		}
		if got := to.Format(DateFormat); got != "2024-06-03" {
			t.Errorf("to = %s, want 2024-06-03", got)
		}
	})

	t.Run("nil metadata falls back", func(t *testing.T) {
		var m *StatementMetadata
		from, to := m.DateRange(1, fallbackFrom, fallbackTo)
		if got := from.Format(DateFormat); got != "2024-01-31" {
			t.Errorf("from = %s, want 2024-01-31", got)
		}
		if got := to.Format(DateFormat); got != "2024-02-11" {
			t.Errorf("to = %s, want 2024-02-11", got)
		}
	})

	t.Run("partial metadata mixes declared and fallback", func(t *testing.T) {
		m := &StatementMetadata{FromDate: "2024-05-01"}
		from, to := m.DateRange(0, fallbackFrom, fallbackTo)
		if got := from.Format(DateFormat); got != "2024-05-01" {
			t.Errorf("from = %s, want 2024-05-01", got)
		}
		if !to.Equal(fallbackTo) {
			t.Errorf("to = %v, want fallback", to)
		}
	})
}

func TestInferBankCode(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"hdfc_statement_may.pdf", "HDFC"},
		{"Statement-ICICI-2024.pdf", "ICICI"},
		{"barclays-apr.csv", "BARCLAYS"},
		{"statement.pdf", ""},
	}
	for _, tt := range tests {
		if got := InferBankCode(tt.filename); got != tt.want {
			t.Errorf("InferBankCode(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestRecordRejection_Error(t *testing.T) {
	r := &RecordRejection{Index: 4, Reason: RejectInvalidDate, Detail: "no usable date"}
	want := "record 4: INVALID_DATE: no usable date"
	if r.Error() != want {
		t.Errorf("Error() = %q, want %q", r.Error(), want)
	}
}
