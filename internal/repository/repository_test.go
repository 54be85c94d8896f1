package repository

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewBookingRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewBookingRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewTicketRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewTicketRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewLedgerRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewLedgerRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewAuditRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewAuditRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewRuleRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewRuleRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewAgentRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewAgentRepository(pool)
	assert.NotNil(t, repo)
}
