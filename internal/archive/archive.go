package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/mindvoyage/apiserver/types"
)

// ObjectStore is the byte-oriented operation set both backends implement.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// ReportArchive snapshots generated monthly reports to object storage so a
// report can be reconstructed even after letters are purged.
type ReportArchive struct {
	store ObjectStore
}

func NewReportArchive(store ObjectStore) *ReportArchive {
	return &ReportArchive{store: store}
}

// Archive writes one report snapshot. Keys are unique per generation so
// re-running a month never overwrites history.
func (a *ReportArchive) Archive(ctx context.Context, userID, year, month int, report types.MonthlyReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	key := fmt.Sprintf("reports/%d/%04d-%02d-%s.json", userID, year, month, uuid.NewString())
	if err := a.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		return fmt.Errorf("put report snapshot: %w", err)
	}
	return nil
}
