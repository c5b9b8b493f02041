package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/NOURDINED-MED/bank-backoffice-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Transfer engine
// ============================================================

// ExecuteTransfer moves funds from the sender's active account to the
// account with the given number. Validation happens before any mutation;
// the balance writes are conditional on the balance observed under the
// account locks, and a failed recipient write triggers a best-effort
// compensating restore of the sender.
//
// There is no cross-row transaction on the hosted store. The design is
// at-least-once with best-effort rollback: a failed compensation or a
// failed ledger-leg insert after both balances committed is logged and
// counted for manual reconciliation, not retried.
func (s *BankService) ExecuteTransfer(ctx context.Context, senderCustomerID string, req *domain.TransferRequest) (*domain.TransferResult, error) {
	ctx, span := bankTracer.Start(ctx, "BankService.ExecuteTransfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", senderCustomerID),
		attribute.Float64("amount", req.Amount),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("transfer", time.Since(start)) }()

	result, err := s.executeTransfer(ctx, senderCustomerID, req)
	switch {
	case err == nil:
		s.metrics.IncrTransfer("completed")
	case isRejection(err):
		s.metrics.IncrTransfer("rejected")
	default:
		s.metrics.IncrTransfer("failed")
	}
	return result, err
}

func (s *BankService) executeTransfer(ctx context.Context, senderCustomerID string, req *domain.TransferRequest) (*domain.TransferResult, error) {
	// ── Validation: no side effects up to the first balance write ──

	sender, err := s.store.GetAccountByOwner(ctx, senderCustomerID)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, &domain.ErrInvalidAmount{Amount: amount}
	}
	if amount < s.minTransfer {
		return nil, &domain.ErrBelowMinimum{Amount: amount, Minimum: s.minTransfer}
	}

	if sender.Balance < amount {
		return nil, &domain.ErrInsufficientFunds{Available: sender.Balance, Required: amount}
	}

	recipient, err := s.resolveRecipient(ctx, req.RecipientAccountNumber)
	if err != nil {
		return nil, err
	}

	if sender.ID == recipient.ID {
		return nil, &domain.ErrSameAccount{AccountID: sender.ID}
	}

	// ── Mutation: serialize on both accounts, re-read, then write ──

	unlock := s.locks.lockPair(sender.ID, recipient.ID)
	defer unlock()

	sender, err = s.store.GetAccountByOwner(ctx, senderCustomerID)
	if err != nil {
		return nil, err
	}
	recipient, err = s.store.GetAccountByNumber(ctx, req.RecipientAccountNumber)
	if err != nil {
		return nil, err
	}
	if sender.Balance < amount {
		return nil, &domain.ErrInsufficientFunds{Available: sender.Balance, Required: amount}
	}

	senderNew := sender.Balance - amount
	recipientNew := recipient.Balance + amount
	ref := generateReferenceNumber()

	if err := s.store.UpdateAccountBalance(ctx, sender.ID, sender.Balance, senderNew); err != nil {
		// Nothing committed; abort cleanly.
		s.logger.Error("transfer: sender debit failed",
			zap.String("reference", ref),
			zap.String("sender_account", sender.ID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.store.UpdateAccountBalance(ctx, recipient.ID, recipient.Balance, recipientNew); err != nil {
		s.logger.Error("transfer: recipient credit failed, compensating sender",
			zap.String("reference", ref),
			zap.String("recipient_account", recipient.ID),
			zap.Error(err),
		)
		if compErr := s.store.UpdateAccountBalance(ctx, sender.ID, senderNew, sender.Balance); compErr != nil {
			// The sender is now debited with no matching credit anywhere.
			// This needs manual reconciliation; the counter feeds the alert.
			s.metrics.IncrCompensationFailure()
			s.logger.Error("transfer: compensation failed, sender balance inconsistent",
				zap.String("reference", ref),
				zap.String("sender_account", sender.ID),
				zap.Float64("expected_balance", sender.Balance),
				zap.Error(compErr),
			)
		}
		return nil, err
	}

	// Balances are committed. Ledger legs and audit are recorded
	// best-effort from here on.
	now := time.Now()
	s.writeLedgerLegs(ctx, sender, recipient, amount, senderNew, recipientNew, ref, req.Description, now)

	s.recordAudit(ctx, senderCustomerID, "transfer.executed", "transfer", ref,
		fmt.Sprintf("%.2f from %s to %s", amount, sender.AccountNumber, recipient.AccountNumber))

	s.logger.Info("transfer completed",
		zap.String("reference", ref),
		zap.String("sender_account", sender.ID),
		zap.String("recipient_account", recipient.ID),
		zap.Float64("amount", amount),
	)

	return &domain.TransferResult{
		ReferenceNumber:     ref,
		SenderNewBalance:    senderNew,
		RecipientNewBalance: recipientNew,
	}, nil
}

// resolveRecipient looks up an active account by number, with a short
// TTL cache in front of the store. Balances read from the cache are
// never trusted for the mutation step, which re-reads under the locks.
func (s *BankService) resolveRecipient(ctx context.Context, accountNumber string) (*domain.Account, error) {
	if accountNumber == "" {
		return nil, &domain.ErrValidation{Field: "recipient_account_number", Message: "required"}
	}

	if acct, ok := s.accounts.Get(accountNumber); ok {
		s.metrics.IncrCacheHit("accounts")
		return acct, nil
	}
	s.metrics.IncrCacheMiss("accounts")

	acct, err := s.store.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	s.accounts.Set(accountNumber, acct)
	return acct, nil
}

// writeLedgerLegs inserts the outgoing and incoming Transaction records.
// Both carry the same reference number. A failed insert leaves the
// committed balances in place; it is logged and counted only.
func (s *BankService) writeLedgerLegs(ctx context.Context, sender, recipient *domain.Account, amount, senderNew, recipientNew float64, ref, description string, now time.Time) {
	legs := []*domain.Transaction{
		{
			ID:                    uuid.New().String(),
			AccountID:             sender.ID,
			CustomerID:            sender.CustomerID,
			Type:                  domain.TxTypeTransfer,
			Amount:                amount,
			BalanceAfter:          senderNew,
			Status:                domain.TxStatusCompleted,
			ReferenceNumber:       ref,
			CounterpartyAccountID: recipient.ID,
			Description:           description,
			Metadata:              map[string]any{"direction": "outgoing"},
			Date:                  now,
		},
		{
			ID:                    uuid.New().String(),
			AccountID:             recipient.ID,
			CustomerID:            recipient.CustomerID,
			Type:                  domain.TxTypeTransfer,
			Amount:                amount,
			BalanceAfter:          recipientNew,
			Status:                domain.TxStatusCompleted,
			ReferenceNumber:       ref,
			CounterpartyAccountID: sender.ID,
			Description:           description,
			Metadata:              map[string]any{"direction": "incoming"},
			Date:                  now,
		},
	}

	for _, leg := range legs {
		if err := s.store.InsertTransaction(ctx, leg); err != nil {
			s.metrics.IncrLedgerWriteFailure()
			s.logger.Error("transfer: ledger leg insert failed after balances committed",
				zap.String("reference", ref),
				zap.String("account_id", leg.AccountID),
				zap.Error(err),
			)
		}
	}
}

// isRejection reports whether err is a pre-mutation validation failure,
// as opposed to a persistence failure.
func isRejection(err error) bool {
	switch err.(type) {
	case *domain.ErrInvalidAmount, *domain.ErrBelowMinimum, *domain.ErrInsufficientFunds,
		*domain.ErrSameAccount, *domain.ErrNotFound, *domain.ErrValidation:
		return true
	}
	return false
}
