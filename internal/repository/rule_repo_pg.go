package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skyfare/ticketing/internal/domain"
)

type RuleRepository interface {
	ActiveRules(ctx context.Context) ([]domain.BusinessRule, error)
}

type AgentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error)
}

type PGRuleRepository struct {
	db *pgxpool.Pool
}

func NewRuleRepository(db *pgxpool.Pool) RuleRepository {
	return &PGRuleRepository{db: db}
}

func (r *PGRuleRepository) ActiveRules(ctx context.Context) ([]domain.BusinessRule, error) {
	rows, err := r.db.Query(ctx, `SELECT id, rule_type, priority, condition, effect, active FROM business_rules WHERE active ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.BusinessRule
	for rows.Next() {
		var rule domain.BusinessRule
		var condition, effect []byte
		if err := rows.Scan(&rule.ID, &rule.Type, &rule.Priority, &condition, &effect, &rule.Active); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(condition, &rule.Condition); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(effect, &rule.Effect); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

type PGAgentRepository struct {
	db *pgxpool.Pool
}

func NewAgentRepository(db *pgxpool.Pool) AgentRepository {
	return &PGAgentRepository{db: db}
}

func (r *PGAgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, credit_limit_minor, balance_minor, currency, active FROM agents WHERE id=$1`, id)
	var a domain.Agent
	if err := row.Scan(&a.ID, &a.Name, &a.CreditLimitMinor, &a.BalanceMinor, &a.Currency, &a.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

var (
	_ RuleRepository  = (*PGRuleRepository)(nil)
	_ AgentRepository = (*PGAgentRepository)(nil)
)
