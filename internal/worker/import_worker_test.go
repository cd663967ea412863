package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"finledger/internal/amqp"
	"finledger/internal/core"
	"finledger/internal/importer"
)

type fakeSyncer struct {
	err    error
	owners []string
}

func (f *fakeSyncer) Sync(_ context.Context, ownerID string) (importer.Result, error) {
	f.owners = append(f.owners, ownerID)
	return importer.Result{Inserted: 1}, f.err
}

func TestHandleSyncRequest(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewImportWorker(syncer)

	err := w.HandleSyncRequest(context.Background(), amqp.NewSyncRequestMessage("user-1"))
	if err != nil {
		t.Fatalf("HandleSyncRequest() error = %v", err)
	}
	if len(syncer.owners) != 1 || syncer.owners[0] != "user-1" {
		t.Errorf("synced owners = %v, want [user-1]", syncer.owners)
	}
}

func TestHandleSyncRequestMissingLinkIsAcked(t *testing.T) {
	syncer := &fakeSyncer{err: fmt.Errorf("get bank link: %w", core.ErrNotFound)}
	w := NewImportWorker(syncer)

	if err := w.HandleSyncRequest(context.Background(), amqp.NewSyncRequestMessage("user-1")); err != nil {
		t.Fatalf("unlinked owner should not requeue, got error = %v", err)
	}
}

func TestHandleSyncRequestTransientErrorPropagates(t *testing.T) {
	boom := errors.New("aggregator unavailable")
	w := NewImportWorker(&fakeSyncer{err: boom})

	err := w.HandleSyncRequest(context.Background(), amqp.NewSyncRequestMessage("user-1"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestHandleSyncRequestEmptyOwner(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewImportWorker(syncer)

	if err := w.HandleSyncRequest(context.Background(), &amqp.SyncRequestMessage{}); err != nil {
		t.Fatalf("HandleSyncRequest() error = %v", err)
	}
	if len(syncer.owners) != 0 {
		t.Error("empty owner id must not reach the syncer")
	}
}
