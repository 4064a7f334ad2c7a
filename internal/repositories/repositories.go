package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"library/internal/models"
)

// Repositories take an optional *gorm.DB so the service layer can thread a
// transaction handle through multi-store mutations; nil falls back to the
// repository's own connection.

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	GetByBookID(db *gorm.DB, bookID string) (*models.Book, error)
	AddCopies(db *gorm.DB, bookID string, delta int) error
	// ReserveCopy atomically decrements available_copies when a copy is
	// free. Returns false when the row exists but no copy is available,
	// or when the book is unknown; callers disambiguate via GetByBookID.
	ReserveCopy(db *gorm.DB, bookID string) (bool, error)
	// ReleaseCopy atomically increments available_copies while it is
	// below total_copies. A false return on an existing row means the
	// counters are already at the ceiling.
	ReleaseCopy(db *gorm.DB, bookID string) (bool, error)
	List(db *gorm.DB, title, authors string, offset, limit int) ([]models.Book, error)
	Count(db *gorm.DB) (int64, error)
}

type MemberRepository interface {
	Create(db *gorm.DB, member *models.Member) error
	GetByID(db *gorm.DB, id uint) (*models.Member, error)
	Delete(db *gorm.DB, id uint) error
	List(db *gorm.DB, limit int) ([]models.Member, error)
	// Page returns one page of members matching search (name or email
	// substring) plus the total match count.
	Page(db *gorm.DB, search string, offset, limit int) ([]models.Member, int64, error)
	AdjustIssued(db *gorm.DB, id uint, delta int) (bool, error)
	ApplyDebt(db *gorm.DB, id uint, amount int) error
	// Settle subtracts amount from outstanding_debt and stamps the
	// settlement fields, guarded so the debt never goes negative.
	Settle(db *gorm.DB, id uint, amount int, on models.Date) (bool, error)
	Count(db *gorm.DB) (int64, error)
	CountActive(db *gorm.DB, today models.Date) (int64, error)
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	// OldestOpenByBook returns the longest-open loan for a book.
	OldestOpenByBook(db *gorm.DB, bookID string) (*models.Loan, error)
	ExistsByBook(db *gorm.DB, bookID string) (bool, error)
	// MarkReturned closes an open loan, persisting the fine and overdue
	// days. Returns false if the loan was already returned.
	MarkReturned(db *gorm.DB, loanID uuid.UUID, returnedAt models.Date, fine, overdue int) (bool, error)
	UpdateFineOverdue(db *gorm.DB, loanID uuid.UUID, fine, overdue int) error
	List(db *gorm.DB, limit int) ([]models.Loan, error)
	ListOpenOverdue(db *gorm.DB, today models.Date, limit int) ([]models.Loan, error)
	CountByStatus(db *gorm.DB, status models.LoanStatus) (int64, error)
}

// concrete implementations

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) GetByBookID(db *gorm.DB, bookID string) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "book_id = ?", bookID).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) AddCopies(db *gorm.DB, bookID string, delta int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("book_id = ?", bookID).
		Updates(map[string]interface{}{
			"total_copies":     gorm.Expr("total_copies + ?", delta),
			"available_copies": gorm.Expr("available_copies + ?", delta),
		}).Error
}

func (r *bookRepository) ReserveCopy(db *gorm.DB, bookID string) (bool, error) {
	if db == nil {
		db = r.db
	}
	// Check-and-decrement in a single statement so two concurrent issues
	// of the last copy cannot both succeed.
	res := db.Model(&models.Book{}).
		Where("book_id = ? AND available_copies > 0", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) ReleaseCopy(db *gorm.DB, bookID string) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("book_id = ? AND available_copies < total_copies", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) List(db *gorm.DB, title, authors string, offset, limit int) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Book{})
	if title != "" {
		q = q.Where("title LIKE ?", "%"+title+"%")
	}
	if authors != "" {
		q = q.Where("author LIKE ?", "%"+authors+"%")
	}
	var books []models.Book
	if err := q.Order("book_id").Offset(offset).Limit(limit).Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	if err := db.Model(&models.Book{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

type memberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(db *gorm.DB, member *models.Member) error {
	if db == nil {
		db = r.db
	}
	return db.Create(member).Error
}

func (r *memberRepository) GetByID(db *gorm.DB, id uint) (*models.Member, error) {
	if db == nil {
		db = r.db
	}
	var member models.Member
	if err := db.First(&member, "member_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) Delete(db *gorm.DB, id uint) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Member{}, "member_id = ?", id).Error
}

func (r *memberRepository) List(db *gorm.DB, limit int) ([]models.Member, error) {
	if db == nil {
		db = r.db
	}
	q := db.Order("member_id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var members []models.Member
	if err := q.Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *memberRepository) Page(db *gorm.DB, search string, offset, limit int) ([]models.Member, int64, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Member{})
	if search != "" {
		pattern := "%" + search + "%"
		q = q.Where("member_name LIKE ? OR member_email LIKE ?", pattern, pattern)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var members []models.Member
	if err := q.Order("member_id").Offset(offset).Limit(limit).Find(&members).Error; err != nil {
		return nil, 0, err
	}
	return members, total, nil
}

func (r *memberRepository) AdjustIssued(db *gorm.DB, id uint, delta int) (bool, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Member{}).Where("member_id = ?", id)
	if delta < 0 {
		// books_issued mirrors the open-loan count and must not go
		// negative.
		q = q.Where("books_issued >= ?", -delta)
	}
	res := q.UpdateColumn("books_issued", gorm.Expr("books_issued + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *memberRepository) ApplyDebt(db *gorm.DB, id uint, amount int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Member{}).
		Where("member_id = ?", id).
		UpdateColumn("outstanding_debt", gorm.Expr("outstanding_debt + ?", amount)).
		Error
}

func (r *memberRepository) Settle(db *gorm.DB, id uint, amount int, on models.Date) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Member{}).
		Where("member_id = ? AND outstanding_debt >= ?", id, amount).
		Updates(map[string]interface{}{
			"outstanding_debt":     gorm.Expr("outstanding_debt - ?", amount),
			"last_settlement_date": on,
			"last_settled_amount":  amount,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *memberRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	if err := db.Model(&models.Member{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *memberRepository) CountActive(db *gorm.DB, today models.Date) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	if err := db.Model(&models.Member{}).
		Where("end_date >= ?", today).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Create(loan).Error
}

func (r *loanRepository) OldestOpenByBook(db *gorm.DB, bookID string) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.Where("book_id = ? AND status = ?", bookID, models.LoanStatusIssued).
		Order("issue_date ASC, loan_id ASC").
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) ExistsByBook(db *gorm.DB, bookID string) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	if err := db.Model(&models.Loan{}).Where("book_id = ?", bookID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *loanRepository) MarkReturned(db *gorm.DB, loanID uuid.UUID, returnedAt models.Date, fine, overdue int) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Loan{}).
		Where("loan_id = ? AND status = ?", loanID, models.LoanStatusIssued).
		Updates(map[string]interface{}{
			"status":      models.LoanStatusReturned,
			"returned_at": returnedAt,
			"fine":        fine,
			"overdue":     overdue,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *loanRepository) UpdateFineOverdue(db *gorm.DB, loanID uuid.UUID, fine, overdue int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Loan{}).
		Where("loan_id = ?", loanID).
		Updates(map[string]interface{}{"fine": fine, "overdue": overdue}).
		Error
}

func (r *loanRepository) List(db *gorm.DB, limit int) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	q := db.Order("issue_date DESC, loan_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var loans []models.Loan
	if err := q.Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListOpenOverdue(db *gorm.DB, today models.Date, limit int) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	q := db.Preload("Member").
		Where("status = ? AND due_date < ?", models.LoanStatusIssued, today).
		Order("due_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var loans []models.Loan
	if err := q.Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) CountByStatus(db *gorm.DB, status models.LoanStatus) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	if err := db.Model(&models.Loan{}).Where("status = ?", status).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
