package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"library/internal/models"
	"library/internal/services"
)

type CirculationHandler struct {
	svc services.CirculationService
}

// RegisterRoutes mounts the circulation API. The trailing slashes are part
// of the wire contract the UI consumes.
func RegisterRoutes(r *gin.Engine, svc services.CirculationService, librarianToken string) {
	h := &CirculationHandler{svc: svc}

	r.Use(Authorization(librarianToken))

	// Catalog
	r.GET("/books/", h.listBooks)
	r.POST("/books/", h.upsertStock)

	// Membership
	r.GET("/members/", h.listMembers)
	r.POST("/members/", h.enrollMember)
	r.DELETE("/members/", h.deleteMember)
	r.GET("/members_page/", h.membersPage)
	r.PATCH("/members/:member_id/settle_dues/", h.settleDues)
	r.GET("/settle_member_debt/", h.settleAllDues)

	// Circulation
	r.POST("/issued_books/", h.issueBook)
	r.PUT("/issued_books/", h.returnBook)
	r.GET("/issued_books/", h.openLoanForBook)
	r.GET("/issued_books_list/", h.listLoans)
	r.GET("/overdue_book_list/", h.overdueLoans)

	// Reporting
	r.GET("/statistics/", h.statistics)
}

// bindStrict decodes a JSON body rejecting unknown fields, then runs the
// binding validators. Client payloads are tagged schemas, not free-form
// maps.
func bindStrict(c *gin.Context, obj interface{}) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data in request body")
	}
	return binding.Validator.ValidateStruct(obj)
}

// statusFor maps domain errors onto HTTP statuses. Validation failures are
// client errors; a consistency violation is a server fault and must not be
// masked as one.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrMemberNotFound),
		errors.Is(err, services.ErrLoanNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrOutOfStock),
		errors.Is(err, services.ErrAlreadyReturned),
		errors.Is(err, services.ErrMemberHasLoans),
		errors.Is(err, services.ErrMembershipExpired),
		errors.Is(err, services.ErrDebtLimitExceeded),
		errors.Is(err, services.ErrAmountExceedsDebt):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

func (h *CirculationHandler) listBooks(c *gin.Context) {
	page := intQuery(c, "page", 1)
	books, err := h.svc.ListBooks(page, c.Query("title"), c.Query("authors"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

type stockRequest struct {
	BookID    string `json:"book_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Publisher string `json:"publisher"`
}

func (h *CirculationHandler) upsertStock(c *gin.Context) {
	if !requireLibrarian(c) {
		return
	}
	var req stockRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.svc.UpsertStock(services.StockInput{
		BookID:    req.BookID,
		Quantity:  req.Quantity,
		Title:     req.Title,
		Author:    req.Author,
		Publisher: req.Publisher,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

// ─── Membership ───────────────────────────────────────────────────────────────

func (h *CirculationHandler) listMembers(c *gin.Context) {
	members, err := h.svc.ListMembers(intQuery(c, "count", 0))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

type memberRequest struct {
	MemberName  string `json:"member_name" binding:"required"`
	MemberEmail string `json:"member_email" binding:"required,email"`
	MemberPhone string `json:"member_phone"`
	EndDate     string `json:"end_date" binding:"required"`

	// Accepted for wire compatibility. is_active is derived from the
	// membership window; books_issued mirrors open loans and always
	// starts at zero.
	IsActive        *bool `json:"is_active"`
	OutstandingDebt int   `json:"outstanding_debt" binding:"min=0"`
	BooksIssued     int   `json:"books_issued"`
}

func (h *CirculationHandler) enrollMember(c *gin.Context) {
	if !requireLibrarian(c) {
		return
	}
	var req memberRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	endDate, err := models.ParseDate(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date, want YYYY-MM-DD"})
		return
	}

	member, err := h.svc.EnrollMember(services.MemberInput{
		Name:        req.MemberName,
		Email:       req.MemberEmail,
		Phone:       req.MemberPhone,
		EndDate:     endDate,
		InitialDebt: req.OutstandingDebt,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

type deleteMemberRequest struct {
	MemberID uint `json:"member_id" binding:"required"`
}

func (h *CirculationHandler) deleteMember(c *gin.Context) {
	if !requireLibrarian(c) {
		return
	}
	var req deleteMemberRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.DeleteMember(req.MemberID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member deleted"})
}

func (h *CirculationHandler) membersPage(c *gin.Context) {
	page, err := h.svc.MembersPage(intQuery(c, "page", 1), c.Query("search"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type settleDuesRequest struct {
	Amount int `json:"amount" binding:"required"`
}

func (h *CirculationHandler) settleDues(c *gin.Context) {
	if !requireLibrarian(c) {
		return
	}
	memberID, err := strconv.ParseUint(c.Param("member_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
		return
	}
	var req settleDuesRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.svc.SettleDues(uint(memberID), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dues settled", "member": member})
}

func (h *CirculationHandler) settleAllDues(c *gin.Context) {
	if !requireLibrarian(c) {
		return
	}
	memberID, err := strconv.ParseUint(c.Query("member_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
		return
	}

	member, err := h.svc.SettleAllDues(uint(memberID))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "outstanding settled", "member": member})
}

// ─── Circulation ──────────────────────────────────────────────────────────────

type issueRequest struct {
	BookID         string `json:"book_id" binding:"required"`
	BookTitle      string `json:"book_title"`
	BookAuthor     string `json:"book_author"`
	IssuedToMember uint   `json:"issued_to_member" binding:"required"`

	// Legacy field: the due date of the new loan.
	ReturnDate string `json:"return_date"`
	Status     string `json:"status"`
}

func (h *CirculationHandler) issueBook(c *gin.Context) {
	if !requireLibrarian(c) {
		return
	}
	var req issueRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != "" && req.Status != string(models.LoanStatusIssued) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be Issued"})
		return
	}

	var due models.Date
	if req.ReturnDate != "" {
		parsed, err := models.ParseDate(req.ReturnDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid return_date, want YYYY-MM-DD"})
			return
		}
		due = parsed
	}

	loan, err := h.svc.IssueBook(services.IssueInput{
		BookID:     req.BookID,
		BookTitle:  req.BookTitle,
		BookAuthor: req.BookAuthor,
		MemberID:   req.IssuedToMember,
		DueDate:    due,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

type returnRequest struct {
	BookID string `json:"book_id" binding:"required"`
}

func (h *CirculationHandler) returnBook(c *gin.Context) {
	if !requireLibrarian(c) {
		return
	}
	var req returnRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.svc.ReturnBook(req.BookID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *CirculationHandler) openLoanForBook(c *gin.Context) {
	bookID := c.Query("book_id")
	if bookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id is required"})
		return
	}

	loan, err := h.svc.OpenLoanForBook(bookID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *CirculationHandler) listLoans(c *gin.Context) {
	limit := intQuery(c, "limit", intQuery(c, "count", 0))
	loans, err := h.svc.ListLoans(limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *CirculationHandler) overdueLoans(c *gin.Context) {
	rows, err := h.svc.OverdueLoans(intQuery(c, "count", 0))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ─── Reporting ────────────────────────────────────────────────────────────────

func (h *CirculationHandler) statistics(c *gin.Context) {
	stats, err := h.svc.Statistics()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
