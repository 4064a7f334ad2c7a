package services

import (
	"library/internal/models"
)

// ─── Fine & Dues Engine ───────────────────────────────────────────────────────

const (
	// DefaultFinePerDay is the fine (in currency units) charged per whole
	// day a return is overdue.
	DefaultFinePerDay = 10

	// DefaultDebtLimit blocks new issues once a member owes more than this.
	DefaultDebtLimit = 500

	// DefaultLoanPeriodDays sets the due date when an issue request does
	// not supply one.
	DefaultLoanPeriodDays = 14

	// DefaultPageSize is the page size for paged listings.
	DefaultPageSize = 20
)

// daysOverdue counts whole calendar days between the due date and the
// return date; zero when the return is on or before the due date.
func daysOverdue(dueDate, returnedAt models.Date) int {
	days := dueDate.DaysUntil(returnedAt)
	if days < 0 {
		return 0
	}
	return days
}

// calculateFine computes the overdue fine for a return.
//
// Rules:
//   - finePerDay per whole calendar day overdue.
//   - Zero if returned on or before the due date; a return on the due
//     date itself is on time.
func calculateFine(dueDate, returnedAt models.Date, finePerDay int) int {
	return daysOverdue(dueDate, returnedAt) * finePerDay
}

// calculateRent bills the loan duration at rentPerDay, minimum one day.
// A zero rate disables rent billing entirely.
func calculateRent(issueDate, returnedAt models.Date, rentPerDay int) int {
	if rentPerDay <= 0 {
		return 0
	}
	days := issueDate.DaysUntil(returnedAt)
	if days < 1 {
		days = 1
	}
	return days * rentPerDay
}
