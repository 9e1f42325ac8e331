package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

// ReportStore defines the interface for the remittance archive: payout
// remittance documents and sweep summaries written once, read by operators
// through presigned URLs.
type ReportStore interface {
	Upload(ctx context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error)
	GeneratePresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
}

// RemittancePath builds the archive path for a payout remittance document
func RemittancePath(storeID int32, payoutID uuid.UUID, completedAt time.Time) string {
	return path.Join(
		"remittances",
		fmt.Sprintf("%d", storeID),
		completedAt.UTC().Format("2006/01"),
		payoutID.String()+".json",
	)
}

// SweepReportPath builds the archive path for a sweep summary
func SweepReportPath(ranAt time.Time) string {
	return path.Join(
		"sweeps",
		ranAt.UTC().Format("2006/01/02"),
		ranAt.UTC().Format("150405")+".json",
	)
}
