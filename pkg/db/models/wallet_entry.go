package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmcandela/wholestock-backend/pkg/enums"
)

// WalletEntry is an append-only credit ledger row. Seq is dense per owner;
// the unique index on (owner_id, seq) is what serializes concurrent appends.
type WalletEntry struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID           uuid.UUID             `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:uq_wallet_entries_owner_seq,priority:1"`
	Seq               int64                 `gorm:"column:seq;not null;uniqueIndex:uq_wallet_entries_owner_seq,priority:2"`
	Type              enums.WalletEntryType `gorm:"column:type;type:text;not null"`
	AmountCents       int64                 `gorm:"column:amount_cents;not null"`
	BalanceAfterCents int64                 `gorm:"column:balance_after_cents;not null"`
	Source            string                `gorm:"column:source;not null"`
	ReferenceID       *uuid.UUID            `gorm:"column:reference_id;type:uuid"`
	Memo              *string               `gorm:"column:memo"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}
