package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LoanStatus string

const (
	LoanStatusIssued   LoanStatus = "Issued"
	LoanStatusReturned LoanStatus = "Returned"
)

type BookStatus string

const (
	BookStatusAvailable BookStatus = "Available"
	BookStatusIssued    BookStatus = "Issued"
)

type Book struct {
	ID              uint       `gorm:"primaryKey" json:"-"`
	BookID          string     `gorm:"size:50;uniqueIndex;not null" json:"bookID"`
	Title           string     `gorm:"size:255" json:"title"`
	Author          string     `gorm:"size:255" json:"authors"`
	Publisher       string     `gorm:"size:255" json:"publisher"`
	AverageRating   float64    `gorm:"not null;default:4.5" json:"average_rating"`
	TotalCopies     int        `gorm:"not null" json:"total_copies"`
	AvailableCopies int        `gorm:"not null" json:"available_copies"`
	IssuedCopies    int        `gorm:"-" json:"issued_copies"`
	Status          BookStatus `gorm:"-" json:"status"`
}

// AfterFind fills the derived display fields. issued_copies is never
// stored; it must always equal total - available.
func (b *Book) AfterFind(_ *gorm.DB) error {
	b.Refresh()
	return nil
}

// Refresh recomputes the derived fields from the stored counters.
func (b *Book) Refresh() {
	b.IssuedCopies = b.TotalCopies - b.AvailableCopies
	if b.AvailableCopies > 0 {
		b.Status = BookStatusAvailable
	} else {
		b.Status = BookStatusIssued
	}
}

type Member struct {
	MemberID           uint   `gorm:"primaryKey" json:"member_id"`
	MemberName         string `gorm:"size:50;not null" json:"member_name"`
	MemberEmail        string `gorm:"size:255;not null" json:"member_email"`
	MemberPhone        string `gorm:"size:15" json:"member_phone"`
	JoiningDate        Date   `gorm:"not null" json:"joining_date"`
	EndDate            Date   `gorm:"not null" json:"end_date"`
	IsActive           bool   `gorm:"-" json:"is_active"`
	OutstandingDebt    int    `gorm:"not null;default:0" json:"outstanding_debt"`
	BooksIssued        int    `gorm:"not null;default:0" json:"books_issued"`
	LastSettlementDate *Date  `json:"last_settlement_date"`
	LastSettledAmount  int    `gorm:"not null;default:0" json:"last_settled_amount"`
}

// AfterFind derives membership activity from the membership window; the
// stored row never carries an is_active column.
func (m *Member) AfterFind(_ *gorm.DB) error {
	m.Refresh(Today())
	return nil
}

// Refresh recomputes is_active relative to the given day.
func (m *Member) Refresh(today Date) {
	m.IsActive = !today.After(m.EndDate.Time)
}

// Loan is one issue-to-return lifecycle. Rows are append-only history: a
// loan is mutated exactly once, by its matching return.
//
// The JSON field names preserve the legacy row shape the UI consumes:
// "return_date" is the due date, "returned_at" the actual return.
type Loan struct {
	LoanID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"loan_id"`
	BookID     string     `gorm:"size:50;index;not null" json:"book_id"`
	BookTitle  string     `gorm:"size:255" json:"book_title"`
	BookAuthor string     `gorm:"size:255" json:"book_author"`
	MemberID   uint       `gorm:"index;not null" json:"issued_to_member"`
	Member     Member     `gorm:"foreignKey:MemberID;references:MemberID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	IssueDate  Date       `gorm:"not null" json:"issue_date"`
	DueDate    Date       `gorm:"not null" json:"return_date"`
	ReturnedAt *Date      `json:"returned_at"`
	Status     LoanStatus `gorm:"size:50;not null;index" json:"status"`
	Overdue    int        `gorm:"not null;default:0" json:"overdue"`
	Fine       int        `gorm:"not null;default:0" json:"fine"`
}

func (l *Loan) BeforeCreate(_ *gorm.DB) error {
	if l.LoanID == uuid.Nil {
		l.LoanID = uuid.New()
	}
	return nil
}
