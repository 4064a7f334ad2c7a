package services

import (
	"errors"
	"log"
	"math"

	"gorm.io/gorm"

	"library/internal/models"
)

// Read-only reporting over the three stores. Nothing here mutates
// circulation state except the overdue report, which refreshes the
// persisted fine/overdue columns on still-open rows for the UI.

// MembersPage is one page of the member roster.
type MembersPage struct {
	Members      []models.Member `json:"members"`
	TotalPages   int             `json:"total_pages"`
	CurrentPage  int             `json:"current_page"`
	TotalMembers int64           `json:"total_members"`
}

// OverdueRow is one line of the overdue report.
type OverdueRow struct {
	MemberID   uint   `json:"member_id"`
	MemberName string `json:"member_name"`
	BookID     string `json:"book_id"`
	BookTitle  string `json:"book_title"`
	BookAuthor string `json:"book_author"`
	Overdue    int    `json:"overdue"`
	Fine       int    `json:"fine"`
}

// Statistics is the dashboard summary.
type Statistics struct {
	TotalMembers  int64 `json:"total_members"`
	ActiveMembers int64 `json:"active_members"`
	IssuedBooks   int64 `json:"issued_books"`
	ReturnedBooks int64 `json:"returned_books"`
	TotalBooks    int64 `json:"total_books"`
}

// ListBooks returns one page of the catalog, optionally filtered by title
// or author substring.
func (s *circulationService) ListBooks(page int, title, authors string) ([]models.Book, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * s.policy.PageSize
	return s.books.List(nil, title, authors, offset, s.policy.PageSize)
}

// ListMembers returns up to count members; count <= 0 means all.
func (s *circulationService) ListMembers(count int) ([]models.Member, error) {
	return s.members.List(nil, count)
}

// MembersPage returns one page of members matching search.
func (s *circulationService) MembersPage(page int, search string) (*MembersPage, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * s.policy.PageSize
	members, total, err := s.members.Page(nil, search, offset, s.policy.PageSize)
	if err != nil {
		return nil, err
	}
	totalPages := int(math.Ceil(float64(total) / float64(s.policy.PageSize)))
	if members == nil {
		members = []models.Member{}
	}
	return &MembersPage{
		Members:      members,
		TotalPages:   totalPages,
		CurrentPage:  page,
		TotalMembers: total,
	}, nil
}

// OpenLoanForBook returns the open loan for a book, if any.
func (s *circulationService) OpenLoanForBook(bookID string) (*models.Loan, error) {
	loan, err := s.loans.OldestOpenByBook(nil, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// ListLoans returns loan rows newest first. Open loans carry a display
// fine computed as if returned today; only a return persists a fine.
func (s *circulationService) ListLoans(limit int) ([]models.Loan, error) {
	loans, err := s.loans.List(nil, limit)
	if err != nil {
		return nil, err
	}
	today := models.Today()
	for i := range loans {
		if loans[i].Status == models.LoanStatusIssued {
			loans[i].Overdue = daysOverdue(loans[i].DueDate, today)
			loans[i].Fine = calculateFine(loans[i].DueDate, today, s.policy.FinePerDay)
		}
	}
	return loans, nil
}

// OverdueLoans reports open loans past their due date, refreshing the
// stored fine and overdue-day columns at today's rate.
func (s *circulationService) OverdueLoans(count int) ([]OverdueRow, error) {
	today := models.Today()
	loans, err := s.loans.ListOpenOverdue(nil, today, count)
	if err != nil {
		return nil, err
	}

	rows := make([]OverdueRow, 0, len(loans))
	for _, loan := range loans {
		overdue := daysOverdue(loan.DueDate, today)
		fine := calculateFine(loan.DueDate, today, s.policy.FinePerDay)
		if err := s.loans.UpdateFineOverdue(nil, loan.LoanID, fine, overdue); err != nil {
			log.Printf("[ERROR] OverdueLoans: failed to refresh loan %s: %v", loan.LoanID, err)
			return nil, err
		}
		rows = append(rows, OverdueRow{
			MemberID:   loan.MemberID,
			MemberName: loan.Member.MemberName,
			BookID:     loan.BookID,
			BookTitle:  loan.BookTitle,
			BookAuthor: loan.BookAuthor,
			Overdue:    overdue,
			Fine:       fine,
		})
	}
	return rows, nil
}

// Statistics aggregates the dashboard counters.
func (s *circulationService) Statistics() (*Statistics, error) {
	stats := &Statistics{}
	var err error
	if stats.TotalMembers, err = s.members.Count(nil); err != nil {
		return nil, err
	}
	if stats.ActiveMembers, err = s.members.CountActive(nil, models.Today()); err != nil {
		return nil, err
	}
	if stats.IssuedBooks, err = s.loans.CountByStatus(nil, models.LoanStatusIssued); err != nil {
		return nil, err
	}
	if stats.ReturnedBooks, err = s.loans.CountByStatus(nil, models.LoanStatusReturned); err != nil {
		return nil, err
	}
	if stats.TotalBooks, err = s.books.Count(nil); err != nil {
		return nil, err
	}
	return stats, nil
}
