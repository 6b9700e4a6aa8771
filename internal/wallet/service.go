package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmcandela/wholestock-backend/pkg/db"
	"github.com/rmcandela/wholestock-backend/pkg/db/models"
	"github.com/rmcandela/wholestock-backend/pkg/enums"
	pkgerrors "github.com/rmcandela/wholestock-backend/pkg/errors"
	"github.com/rmcandela/wholestock-backend/pkg/logger"
	"github.com/rmcandela/wholestock-backend/pkg/outbox"
	"github.com/rmcandela/wholestock-backend/pkg/outbox/payloads"
)

const ownerSeqConstraint = "uq_wallet_entries_owner_seq"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AppendInput describes one ledger append. CREDIT and DEBIT amounts are
// positive; ADJUSTMENT carries its own sign.
type AppendInput struct {
	OwnerID     uuid.UUID
	Type        enums.WalletEntryType
	AmountCents int64
	Source      string
	ReferenceID *uuid.UUID
	Memo        *string
}

// Service is the append-only credit ledger. The current balance is always
// the BalanceAfterCents of the owner's highest-seq entry; wall clocks are
// never consulted.
type Service interface {
	Append(ctx context.Context, input AppendInput) (*models.WalletEntry, error)
	Balance(ctx context.Context, ownerID uuid.UUID) (int64, error)
	ListEntries(ctx context.Context, ownerID uuid.UUID) ([]models.WalletEntry, error)
	VerifyOwner(ctx context.Context, ownerID uuid.UUID) error
}

type service struct {
	tx     txRunner
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the credit ledger.
func NewService(tx txRunner, repo Repository, outboxSvc outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, repo: repo, outbox: outboxSvc, logg: logg}, nil
}

// Append writes the next entry for the owner. The owner's latest row is
// locked so balance reads and seq assignment serialize; a DEBIT that would
// drive the balance negative is rejected and nothing is written.
func (s *service) Append(ctx context.Context, input AppendInput) (*models.WalletEntry, error) {
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid wallet entry type %q", input.Type))
	}
	if input.Source == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source required")
	}
	switch input.Type {
	case enums.WalletEntryTypeCredit, enums.WalletEntryTypeDebit:
		if input.AmountCents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
		}
	case enums.WalletEntryTypeAdjustment:
		if input.AmountCents == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must be non-zero")
		}
	}

	var entry *models.WalletEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var prevBalance int64
		var prevSeq int64
		latest, err := repo.FindLatestForUpdate(ctx, input.OwnerID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest wallet entry")
			}
		} else {
			prevBalance = latest.BalanceAfterCents
			prevSeq = latest.Seq
		}

		signed := signedAmount(input.Type, input.AmountCents)
		balanceAfter := prevBalance + signed
		if balanceAfter < 0 && input.Type != enums.WalletEntryTypeAdjustment {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient balance: have %d, debit %d", prevBalance, input.AmountCents)).WithDetails(map[string]any{
				"reason":        "insufficient_balance",
				"balance_cents": prevBalance,
				"amount_cents":  input.AmountCents,
			})
		}

		entry = &models.WalletEntry{
			ID:                uuid.New(),
			OwnerID:           input.OwnerID,
			Seq:               prevSeq + 1,
			Type:              input.Type,
			AmountCents:       input.AmountCents,
			BalanceAfterCents: balanceAfter,
			Source:            input.Source,
			ReferenceID:       input.ReferenceID,
			Memo:              input.Memo,
		}
		if err := repo.Create(ctx, entry); err != nil {
			if db.IsUniqueViolation(err, ownerSeqConstraint) {
				return pkgerrors.New(pkgerrors.CodeConflict, "concurrent wallet append, retry")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet entry")
		}

		eventType := enums.EventWalletCredited
		if signed < 0 {
			eventType = enums.EventWalletDebited
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateWalletEntry,
			AggregateID:   entry.ID,
			Data: payloads.WalletEntryEvent{
				EntryID:           entry.ID,
				OwnerID:           entry.OwnerID,
				Seq:               entry.Seq,
				AmountCents:       entry.AmountCents,
				BalanceAfterCents: entry.BalanceAfterCents,
				Source:            entry.Source,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Balance reads the owner's current balance; zero for an empty wallet.
func (s *service) Balance(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	if ownerID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	latest, err := s.repo.FindLatest(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest wallet entry")
	}
	return latest.BalanceAfterCents, nil
}

func (s *service) ListEntries(ctx context.Context, ownerID uuid.UUID) ([]models.WalletEntry, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// VerifyOwner recomputes the owner's prefix sums and checks seq density.
// Drift is reported for operators, never repaired; corrections are explicit
// ADJUSTMENT entries.
func (s *service) VerifyOwner(ctx context.Context, ownerID uuid.UUID) error {
	if ownerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	entries, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet entries")
	}

	var running int64
	for i, entry := range entries {
		if entry.Seq != int64(i)+1 {
			err := pkgerrors.New(pkgerrors.CodeConsistency, fmt.Sprintf("wallet %s has seq gap: entry %d holds seq %d", ownerID, i+1, entry.Seq))
			s.logg.Error(ctx, "wallet ledger drift detected", err)
			return err
		}
		running += signedAmount(entry.Type, entry.AmountCents)
		if entry.BalanceAfterCents != running {
			err := pkgerrors.New(pkgerrors.CodeConsistency, fmt.Sprintf("wallet %s seq %d records balance %d but prefix sum is %d", ownerID, entry.Seq, entry.BalanceAfterCents, running))
			s.logg.Error(ctx, "wallet ledger drift detected", err)
			return err
		}
	}
	return nil
}

func signedAmount(entryType enums.WalletEntryType, amount int64) int64 {
	if entryType == enums.WalletEntryTypeDebit {
		return -amount
	}
	return amount
}
