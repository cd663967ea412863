package storage

import (
	"context"
	"fmt"

	"finledger/internal/plans"
)

func (s *SQLiteStore) ListPlans(ctx context.Context, ownerID string) ([]plans.View, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.owner_id, p.account_id, p.type, p.amount, p.month, a.name
		 FROM plans p
		 JOIN accounts a ON a.id = p.account_id
		 WHERE p.owner_id = ?
		 ORDER BY p.id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []plans.View
	for rows.Next() {
		var v plans.View
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.AccountID, &v.Type, &v.Amount, &v.Month, &v.AccountName); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreatePlan(ctx context.Context, p plans.Plan) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO plans (id, owner_id, account_id, type, amount, month) VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, p.OwnerID, p.AccountID, p.Type, p.Amount, p.Month)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdatePlan(ctx context.Context, p plans.Plan) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE plans SET account_id = ?, type = ?, amount = ?, month = ? WHERE id = ? AND owner_id = ?",
		p.AccountID, p.Type, p.Amount, p.Month, p.ID, p.OwnerID)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeletePlan(ctx context.Context, ownerID, planID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM plans WHERE id = ? AND owner_id = ?", planID, ownerID)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return requireRow(res)
}

var _ plans.Store = (*SQLiteStore)(nil)
