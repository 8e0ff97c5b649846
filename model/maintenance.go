package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RunMaintenance executes housekeeping tasks. Every task is idempotent and
// safe to run repeatedly; nothing here is scheduled, the sweep runs only
// when explicitly invoked.
func RunMaintenance(ctx context.Context, s *Store, logger *slog.Logger) error {
	start := time.Now()
	logger.Info("maintenance: start")

	unlock, err := tryAcquireLock(ctx, s)
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	repaired, err := verifyInvoiceTotals(ctx, s, logger)
	if err != nil {
		return fmt.Errorf("verify invoice totals: %w", err)
	}
	if repaired > 0 {
		logger.Warn("maintenance: repaired drifted invoices", "count", repaired)
	}

	if err := deleteInvalidAPITokens(ctx, s); err != nil {
		return fmt.Errorf("delete invalid API tokens: %w", err)
	}

	if err := vacuumAnalyze(ctx, s); err != nil {
		return fmt.Errorf("vacuum/analyze: %w", err)
	}

	logger.Info("maintenance: done", "elapsed", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// tryAcquireLock takes a DB-level singleton lock (Postgres only; SQLite has
// a single writer anyway).
func tryAcquireLock(ctx context.Context, s *Store) (func(), error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}

	switch s.db.Dialector.Name() {
	case "postgres":
		var got bool
		if err := sqlDB.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", 52090114).Scan(&got); err != nil {
			return nil, err
		}
		if !got {
			return nil, errors.New("another maintenance run is in progress")
		}
		return func() {
			_, _ = sqlDB.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", 52090114)
		}, nil
	default:
		return nil, nil
	}
}

// verifyInvoiceTotals recomputes every invoice's derived fields from its
// line items and payments and repairs rows whose stored values drifted
// (invariants: subtotal, total, commission, status). Returns the number of
// repaired invoices.
func verifyInvoiceTotals(ctx context.Context, s *Store, logger *slog.Logger) (int, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&Invoice{}).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	now := time.Now()
	repaired := 0
	for _, id := range ids {
		inv, err := s.LoadInvoice(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return repaired, err
		}
		before := *inv
		inv.Reconcile(now)
		if inv.Subtotal.Equal(before.Subtotal) &&
			inv.TotalAmount.Equal(before.TotalAmount) &&
			inv.CommissionAmount.Equal(before.CommissionAmount) &&
			inv.Status == before.Status {
			continue
		}
		logger.Warn("maintenance: invoice drifted",
			"invoice", inv.ID,
			"stored_total", before.TotalAmount,
			"computed_total", inv.TotalAmount,
			"stored_status", before.Status,
			"computed_status", inv.Status)
		if err := s.SaveInvoice(inv); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

func deleteInvalidAPITokens(ctx context.Context, s *Store) error {
	return s.db.WithContext(ctx).
		Unscoped().
		Where("disabled = ? OR (expires_at IS NOT NULL AND expires_at < ?)", true, time.Now()).
		Delete(&APIToken{}).Error
}

func vacuumAnalyze(ctx context.Context, s *Store) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	switch s.db.Dialector.Name() {
	case "postgres":
		_, err = sqlDB.ExecContext(ctx, "VACUUM (ANALYZE)")
	case "sqlite":
		_, err = sqlDB.ExecContext(ctx, "VACUUM")
		if err == nil {
			_, _ = sqlDB.ExecContext(ctx, "PRAGMA optimize")
		}
	}
	return err
}
