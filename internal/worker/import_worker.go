// Package worker runs queued bank-sync requests against the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finledger/internal/amqp"
	"finledger/internal/core"
	"finledger/internal/importer"
)

// Syncer pulls a fresh snapshot for an owner and reconciles it. Satisfied
// by banksync.Service.
type Syncer interface {
	Sync(ctx context.Context, ownerID string) (importer.Result, error)
}

type ImportWorker struct {
	syncer Syncer
}

func NewImportWorker(syncer Syncer) *ImportWorker {
	return &ImportWorker{syncer: syncer}
}

// HandleSyncRequest processes one queued sync request. A missing bank
// link means the owner unlinked after requesting the sync; the message is
// acked, not requeued, because retrying can never succeed.
func (w *ImportWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	if msg.OwnerID == "" {
		slog.WarnContext(ctx, "Discarding sync request without owner id")
		return nil
	}

	res, err := w.syncer.Sync(ctx, msg.OwnerID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Sync requested for owner without bank link", "owner_id", msg.OwnerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync owner %s: %w", msg.OwnerID, err)
	}

	slog.InfoContext(ctx, "Sync request completed",
		"owner_id", msg.OwnerID,
		"inserted", res.Inserted,
		"dropped", res.Dropped)
	return nil
}
