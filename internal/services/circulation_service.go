package services

import (
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"library/internal/models"
	"library/internal/repositories"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrBookNotFound is returned when the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrMemberNotFound is returned when the referenced member does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrLoanNotFound is returned when no loan exists for the book.
	ErrLoanNotFound = errors.New("no loan found for book")

	// ErrOutOfStock is returned when every copy of the book is out on loan.
	ErrOutOfStock = errors.New("no available copies")

	// ErrMembershipExpired rejects an issue for a member whose membership
	// window has closed.
	ErrMembershipExpired = errors.New("membership expired")

	// ErrDebtLimitExceeded rejects an issue for a member owing more than
	// the configured debt limit.
	ErrDebtLimitExceeded = errors.New("outstanding debt exceeds limit")

	// ErrAlreadyReturned is returned when every loan for the book has
	// already been closed.
	ErrAlreadyReturned = errors.New("book already returned")

	// ErrAmountExceedsDebt rejects a settlement larger than the member's
	// outstanding debt.
	ErrAmountExceedsDebt = errors.New("amount exceeds outstanding debt")

	// ErrInvalidAmount rejects a zero or negative settlement.
	ErrInvalidAmount = errors.New("settlement amount must be positive")

	// ErrMemberHasLoans blocks deleting a member with open loans.
	ErrMemberHasLoans = errors.New("member has books issued")

	// ErrConsistency signals a violated counter invariant. It indicates a
	// bug in the atomic-mutation guarantee and is never surfaced as a
	// validation failure.
	ErrConsistency = errors.New("stock counters inconsistent")
)

// ─── Policy ───────────────────────────────────────────────────────────────────

// Policy carries the tunable circulation rules.
type Policy struct {
	FinePerDay     int
	RentPerDay     int
	DebtLimit      int
	LoanPeriodDays int
	PageSize       int
}

func DefaultPolicy() Policy {
	return Policy{
		FinePerDay:     DefaultFinePerDay,
		DebtLimit:      DefaultDebtLimit,
		LoanPeriodDays: DefaultLoanPeriodDays,
		PageSize:       DefaultPageSize,
	}
}

// ─── Service Interface ────────────────────────────────────────────────────────

// StockInput admits copies of a title into the catalog.
type StockInput struct {
	BookID    string
	Quantity  int
	Title     string
	Author    string
	Publisher string
}

// MemberInput enrolls a member.
type MemberInput struct {
	Name        string
	Email       string
	Phone       string
	EndDate     models.Date
	InitialDebt int
}

// IssueInput requests a loan. A zero DueDate falls back to the policy's
// loan period.
type IssueInput struct {
	BookID     string
	BookTitle  string
	BookAuthor string
	MemberID   uint
	DueDate    models.Date
}

// ReturnReceipt reports the outcome of a return.
type ReturnReceipt struct {
	LoanID      uuid.UUID   `json:"loan_id"`
	BookID      string      `json:"book_id"`
	MemberID    uint        `json:"issued_to_member"`
	IssueDate   models.Date `json:"issue_date"`
	DueDate     models.Date `json:"return_date"`
	ReturnedAt  models.Date `json:"returned_at"`
	Overdue     int         `json:"overdue"`
	Fine        int         `json:"fine"`
	Rent        int         `json:"rent"`
	DebtCharged int         `json:"debt_charged"`
}

// CirculationService defines the application-level operations of the
// circulation and dues ledger.
type CirculationService interface {
	UpsertStock(in StockInput) (*models.Book, error)
	GetBook(bookID string) (*models.Book, error)
	ListBooks(page int, title, authors string) ([]models.Book, error)

	EnrollMember(in MemberInput) (*models.Member, error)
	GetMember(memberID uint) (*models.Member, error)
	ListMembers(count int) ([]models.Member, error)
	MembersPage(page int, search string) (*MembersPage, error)
	DeleteMember(memberID uint) error

	IssueBook(in IssueInput) (*models.Loan, error)
	ReturnBook(bookID string) (*ReturnReceipt, error)
	OpenLoanForBook(bookID string) (*models.Loan, error)
	ListLoans(limit int) ([]models.Loan, error)
	OverdueLoans(count int) ([]OverdueRow, error)

	SettleDues(memberID uint, amount int) (*models.Member, error)
	SettleAllDues(memberID uint) (*models.Member, error)

	Statistics() (*Statistics, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type circulationService struct {
	db      *gorm.DB
	books   repositories.BookRepository
	members repositories.MemberRepository
	loans   repositories.LoanRepository
	policy  Policy
}

// NewCirculationService wires up all dependencies and returns a CirculationService.
func NewCirculationService(
	db *gorm.DB,
	books repositories.BookRepository,
	members repositories.MemberRepository,
	loans repositories.LoanRepository,
	policy Policy,
) CirculationService {
	if policy.PageSize <= 0 {
		policy.PageSize = DefaultPageSize
	}
	if policy.LoanPeriodDays <= 0 {
		policy.LoanPeriodDays = DefaultLoanPeriodDays
	}
	return &circulationService{
		db:      db,
		books:   books,
		members: members,
		loans:   loans,
		policy:  policy,
	}
}

// ─── Catalog Admission ────────────────────────────────────────────────────────

// UpsertStock creates the stock row for a new book or adds copies to an
// existing one; added copies start available.
func (s *circulationService) UpsertStock(in StockInput) (*models.Book, error) {
	var book *models.Book

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.books.GetByBookID(tx, in.BookID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			book = &models.Book{
				BookID:          in.BookID,
				Title:           in.Title,
				Author:          in.Author,
				Publisher:       in.Publisher,
				AverageRating:   4.5,
				TotalCopies:     in.Quantity,
				AvailableCopies: in.Quantity,
			}
			if err := s.books.Create(tx, book); err != nil {
				log.Printf("[ERROR] UpsertStock: failed to create book %s: %v", in.BookID, err)
				return err
			}
			return nil
		}

		if err := s.books.AddCopies(tx, in.BookID, in.Quantity); err != nil {
			log.Printf("[ERROR] UpsertStock: failed to add %d copies to book %s: %v", in.Quantity, in.BookID, err)
			return err
		}
		existing.TotalCopies += in.Quantity
		existing.AvailableCopies += in.Quantity
		book = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	book.Refresh()
	log.Printf("[INFO] UpsertStock: book %s now has %d copies (%d available)", book.BookID, book.TotalCopies, book.AvailableCopies)
	return book, nil
}

func (s *circulationService) GetBook(bookID string) (*models.Book, error) {
	book, err := s.books.GetByBookID(nil, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

// ─── Membership ───────────────────────────────────────────────────────────────

// EnrollMember creates a member whose membership runs from today to the
// given end date. books_issued always starts at zero; it mirrors the open
// loan count and is never client-supplied.
func (s *circulationService) EnrollMember(in MemberInput) (*models.Member, error) {
	today := models.Today()
	member := &models.Member{
		MemberName:      in.Name,
		MemberEmail:     in.Email,
		MemberPhone:     in.Phone,
		JoiningDate:     today,
		EndDate:         in.EndDate,
		OutstandingDebt: in.InitialDebt,
	}
	if err := s.members.Create(nil, member); err != nil {
		log.Printf("[ERROR] EnrollMember: failed to create member %q: %v", in.Name, err)
		return nil, err
	}
	member.Refresh(today)
	log.Printf("[INFO] EnrollMember: member %q enrolled (id=%d, until %s)", member.MemberName, member.MemberID, member.EndDate.Format(models.DateLayout))
	return member, nil
}

func (s *circulationService) GetMember(memberID uint) (*models.Member, error) {
	member, err := s.members.GetByID(nil, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

// DeleteMember removes a member with no open loans.
func (s *circulationService) DeleteMember(memberID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		member, err := s.members.GetByID(tx, memberID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}
		if member.BooksIssued > 0 {
			log.Printf("[WARN] DeleteMember: member %d has %d books issued, refusing delete", memberID, member.BooksIssued)
			return ErrMemberHasLoans
		}
		if err := s.members.Delete(tx, memberID); err != nil {
			log.Printf("[ERROR] DeleteMember: failed to delete member %d: %v", memberID, err)
			return err
		}
		log.Printf("[INFO] DeleteMember: member %d deleted", memberID)
		return nil
	})
}

// ─── Issue ────────────────────────────────────────────────────────────────────

// IssueBook implements the transactional issue flow.
//
// Steps (all in one transaction):
//  1. Gate the member: unknown, expired, or over the debt limit aborts
//     before any store is touched.
//  2. Reserve a copy — an atomic check-and-decrement of available_copies,
//     so concurrent issues of the last copy cannot both succeed.
//  3. Create the Loan record and bump the member's books_issued.
//
// Any failure rolls the whole transaction back; the copy reservation is
// never left behind without its loan.
func (s *circulationService) IssueBook(in IssueInput) (*models.Loan, error) {
	var loan *models.Loan

	err := s.db.Transaction(func(tx *gorm.DB) error {
		member, err := s.members.GetByID(tx, in.MemberID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}

		today := models.Today()
		if today.After(member.EndDate.Time) {
			log.Printf("[WARN] IssueBook: member %d membership ended %s", in.MemberID, member.EndDate.Format(models.DateLayout))
			return ErrMembershipExpired
		}
		if member.OutstandingDebt > s.policy.DebtLimit {
			log.Printf("[WARN] IssueBook: member %d owes %d, over limit %d", in.MemberID, member.OutstandingDebt, s.policy.DebtLimit)
			return ErrDebtLimitExceeded
		}

		book, err := s.books.GetByBookID(tx, in.BookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		reserved, err := s.books.ReserveCopy(tx, in.BookID)
		if err != nil {
			return err
		}
		if !reserved {
			log.Printf("[INFO] IssueBook: no available copies of book %s", in.BookID)
			return ErrOutOfStock
		}

		due := in.DueDate
		if due.IsZero() {
			due = today.AddDays(s.policy.LoanPeriodDays)
		}
		title, author := in.BookTitle, in.BookAuthor
		if title == "" {
			title = book.Title
		}
		if author == "" {
			author = book.Author
		}

		loan = &models.Loan{
			BookID:     in.BookID,
			BookTitle:  title,
			BookAuthor: author,
			MemberID:   in.MemberID,
			IssueDate:  today,
			DueDate:    due,
			Status:     models.LoanStatusIssued,
		}
		if err := s.loans.Create(tx, loan); err != nil {
			log.Printf("[ERROR] IssueBook: failed to create loan record: %v", err)
			return err
		}

		if ok, err := s.members.AdjustIssued(tx, in.MemberID, 1); err != nil {
			return err
		} else if !ok {
			return ErrConsistency
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] IssueBook: loan %s created for member %d / book %s, due %s", loan.LoanID, loan.MemberID, loan.BookID, loan.DueDate.Format(models.DateLayout))
	return loan, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnBook implements the transactional return flow for a book id.
//
// Steps (all in one transaction):
//  1. Locate the oldest open loan for the book.
//  2. Compute the fine (and rent, when the policy bills it).
//  3. Close the loan, guarded against a concurrent double-return.
//  4. Release the copy, decrement the member's books_issued, and apply
//     any charge to the member's outstanding debt.
//
// Partial application is a consistency violation, so every sub-step runs
// under the one transaction.
func (s *circulationService) ReturnBook(bookID string) (*ReturnReceipt, error) {
	var receipt *ReturnReceipt

	err := s.db.Transaction(func(tx *gorm.DB) error {
		loan, err := s.loans.OldestOpenByBook(tx, bookID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			seen, err := s.loans.ExistsByBook(tx, bookID)
			if err != nil {
				return err
			}
			if seen {
				log.Printf("[WARN] ReturnBook: every loan for book %s is already closed", bookID)
				return ErrAlreadyReturned
			}
			return ErrLoanNotFound
		}

		today := models.Today()
		overdue := daysOverdue(loan.DueDate, today)
		fine := calculateFine(loan.DueDate, today, s.policy.FinePerDay)
		rent := calculateRent(loan.IssueDate, today, s.policy.RentPerDay)
		log.Printf("[INFO] ReturnBook: closing loan %s (book=%s, member=%d), overdue=%d fine=%d", loan.LoanID, bookID, loan.MemberID, overdue, fine)

		ok, err := s.loans.MarkReturned(tx, loan.LoanID, today, fine, overdue)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyReturned
		}

		released, err := s.books.ReleaseCopy(tx, bookID)
		if err != nil {
			return err
		}
		if !released {
			// An open loan existed, so available < total must have held.
			log.Printf("[ERROR] ReturnBook: release would push available past total for book %s", bookID)
			return ErrConsistency
		}

		if ok, err := s.members.AdjustIssued(tx, loan.MemberID, -1); err != nil {
			return err
		} else if !ok {
			log.Printf("[ERROR] ReturnBook: books_issued already zero for member %d", loan.MemberID)
			return ErrConsistency
		}

		charge := fine + rent
		if charge > 0 {
			if err := s.members.ApplyDebt(tx, loan.MemberID, charge); err != nil {
				log.Printf("[ERROR] ReturnBook: failed to apply debt %d to member %d: %v", charge, loan.MemberID, err)
				return err
			}
		}

		receipt = &ReturnReceipt{
			LoanID:      loan.LoanID,
			BookID:      loan.BookID,
			MemberID:    loan.MemberID,
			IssueDate:   loan.IssueDate,
			DueDate:     loan.DueDate,
			ReturnedAt:  today,
			Overdue:     overdue,
			Fine:        fine,
			Rent:        rent,
			DebtCharged: charge,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ─── Settlement ───────────────────────────────────────────────────────────────

// SettleDues pays amount off a member's outstanding debt and stamps the
// settlement fields. The amount must be positive and no larger than the
// current debt.
func (s *circulationService) SettleDues(memberID uint, amount int) (*models.Member, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var member *models.Member
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.members.GetByID(tx, memberID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}

		// The debt guard lives in the UPDATE itself so a concurrent
		// settlement cannot drive the balance negative.
		ok, err := s.members.Settle(tx, memberID, amount, models.Today())
		if err != nil {
			return err
		}
		if !ok {
			return ErrAmountExceedsDebt
		}

		member, err = s.members.GetByID(tx, memberID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] SettleDues: member %d settled %d, %d outstanding", memberID, amount, member.OutstandingDebt)
	return member, nil
}

// SettleAllDues is the legacy full-settlement variant: it settles the
// member's entire outstanding debt, and is a no-op for a member owing
// nothing.
func (s *circulationService) SettleAllDues(memberID uint) (*models.Member, error) {
	member, err := s.GetMember(memberID)
	if err != nil {
		return nil, err
	}
	if member.OutstandingDebt == 0 {
		return member, nil
	}
	return s.SettleDues(memberID, member.OutstandingDebt)
}
