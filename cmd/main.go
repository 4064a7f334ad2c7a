package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"library/internal/config"
	"library/internal/handlers"
	"library/internal/models"
	"library/internal/repositories"
	"library/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get generic DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.Book{}, &models.Member{}, &models.Loan{}); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	bookRepo := repositories.NewBookRepository(db)
	memberRepo := repositories.NewMemberRepository(db)
	loanRepo := repositories.NewLoanRepository(db)

	svc := services.NewCirculationService(db, bookRepo, memberRepo, loanRepo, services.Policy{
		FinePerDay:     cfg.FinePerDay,
		RentPerDay:     cfg.RentPerDay,
		DebtLimit:      cfg.DebtLimit,
		LoanPeriodDays: cfg.LoanPeriodDays,
		PageSize:       cfg.PageSize,
	})

	router := gin.Default()

	handlers.RegisterRoutes(router, svc, cfg.LibrarianToken)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Starting server on %s", cfg.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
