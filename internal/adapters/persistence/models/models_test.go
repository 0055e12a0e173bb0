package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"openshelf/internal/core/domain"
)

func TestLoan_LateDays_CountsCalendarDays(t *testing.T) {
	due := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		returned time.Time
		want     int
	}{
		{"returned before due", due.Add(-2 * time.Hour), 0},
		{"returned same day later", due.Add(30 * time.Minute), 0},
		{"returned next day two hours later", due.Add(2 * time.Hour), 1},
		{"returned exactly three days later", due.AddDate(0, 0, 3), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			returned := tt.returned
			loan := &Loan{
				Status:     string(domain.LoanReturned),
				DueDate:    due,
				ReturnDate: &returned,
			}
			assert.Equal(t, tt.want, loan.LateDays(time.Now()))
		})
	}
}

func TestLoan_LateDays_OutstandingUsesNow(t *testing.T) {
	now := time.Date(2026, 3, 12, 1, 0, 0, 0, time.UTC)

	active := &Loan{
		Status:  string(domain.LoanOverdue),
		DueDate: time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 2, active.LateDays(now))

	// Closed-but-never-late statuses report zero regardless of due date
	cancelled := &Loan{
		Status:  string(domain.LoanCancelled),
		DueDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 0, cancelled.LateDays(now))
}
