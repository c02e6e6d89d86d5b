package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

func refTx(title string, amount string, date string) *domain.NormalizedTransaction {
	d, _ := time.Parse(domain.DateFormat, date)
	return &domain.NormalizedTransaction{
		Title:  title,
		Amount: decimal.RequireFromString(amount),
		Date:   d,
	}
}

func TestDuplicateDetector(t *testing.T) {
	epsilon := decimal.RequireFromString("0.01")
	existing := []*domain.NormalizedTransaction{
		refTx("Grocery Store", "450.00", "2024-05-10"),
		refTx("Rent May", "15000.00", "2024-05-01"),
	}
	d := NewDuplicateDetector(epsilon, existing)

	tests := []struct {
		name      string
		candidate *domain.NormalizedTransaction
		want      bool
	}{
		{
			name:      "exact match",
			candidate: refTx("Grocery Store", "450.00", "2024-05-10"),
			want:      true,
		},
		{
			name:      "case and whitespace insensitive title",
			candidate: refTx("  GROCERY store ", "450.00", "2024-05-10"),
			want:      true,
		},
		{
			name:      "amount within epsilon",
			candidate: refTx("Grocery Store", "450.005", "2024-05-10"),
			want:      true,
		},
		{
			name:      "amount at epsilon is not a match",
			candidate: refTx("Grocery Store", "450.01", "2024-05-10"),
			want:      false,
		},
		{
			name:      "different date",
			candidate: refTx("Grocery Store", "450.00", "2024-05-11"),
			want:      false,
		},
		{
			name:      "different title",
			candidate: refTx("Grocery Run", "450.00", "2024-05-10"),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsDuplicate(tt.candidate); got != tt.want {
				t.Errorf("IsDuplicate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDuplicateDetector_InFlight(t *testing.T) {
	d := NewDuplicateDetector(decimal.RequireFromString("0.01"), nil)

	first := refTx("ATM withdrawal", "2000.00", "2024-05-12")
	if d.IsDuplicate(first) {
		t.Fatal("empty reference set should not match")
	}
	d.Add(first)

	repeat := refTx("atm withdrawal", "2000.00", "2024-05-12")
	if !d.IsDuplicate(repeat) {
		t.Error("repeat within the same batch should match the accepted record")
	}
}
