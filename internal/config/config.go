package config

import (
	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from the environment.
type Config struct {
	ServerAddr  string `env:"SERVER_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// FinePerDay is charged per whole day a return is overdue.
	FinePerDay int `env:"FINE_PER_DAY" envDefault:"10"`

	// RentPerDay bills the loan duration on return when non-zero.
	// Disabled by default: the stock dues policy accrues debt from
	// overdue fines only.
	RentPerDay int `env:"RENT_PER_DAY" envDefault:"0"`

	// DebtLimit blocks new issues for members owing more than this.
	DebtLimit int `env:"DEBT_LIMIT" envDefault:"500"`

	// LoanPeriodDays sets the due date when the issue request omits one.
	LoanPeriodDays int `env:"LOAN_PERIOD_DAYS" envDefault:"14"`

	PageSize int `env:"PAGE_SIZE" envDefault:"20"`

	// LibrarianToken gates mutating endpoints when set. An empty token
	// leaves the service in open demo mode.
	LibrarianToken string `env:"LIBRARIAN_TOKEN"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
