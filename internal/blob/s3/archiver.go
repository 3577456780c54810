package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// archiveBatchSize bounds how many trades one archival pass loads into
// memory at a time.
const archiveBatchSize = 5000

// Archiver implements domain.Archiver. It drains trades executed before a
// cutoff from the database, serializes them to JSONL, uploads the file, and
// deletes the archived rows. Each pass writes a unique key so reruns never
// overwrite an earlier export.
type Archiver struct {
	writer domain.BlobWriter
	verify domain.BlobReader // optional read-back check before pruning
	trades domain.TradeStore
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver creates an Archiver uploading through writer and draining
// trades from store.
func NewArchiver(writer domain.BlobWriter, store domain.TradeStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: store,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// WithVerifier confirms each uploaded object is visible in the store before
// its rows are pruned. Without it a successful Put is trusted as-is.
func (a *Archiver) WithVerifier(reader domain.BlobReader) *Archiver {
	a.verify = reader
	return a
}

// ArchiveTrades exports trades executed strictly before the cutoff to
// archive/trades/YYYY-MM/<run timestamp>.jsonl and removes them from the
// database. It works in batches and returns the number of trades archived.
// Rows are deleted only after their batch has been uploaded.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	for {
		batch, err := a.trades.ListBefore(ctx, before, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades query: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades marshal: %w", err)
		}

		path := a.archivePath(before)
		if err := a.upload(ctx, path, buf); err != nil {
			return total, fmt.Errorf("s3blob: archive trades upload: %w", err)
		}
		if a.verify != nil {
			ok, err := a.verify.Exists(ctx, path)
			if err != nil {
				return total, fmt.Errorf("s3blob: archive trades verify %s: %w", path, err)
			}
			if !ok {
				return total, fmt.Errorf("s3blob: archive trades verify %s: uploaded object not visible", path)
			}
		}

		// The batch is ordered by (executed_at, id), so pruning through the
		// last trade's compound key removes exactly the uploaded rows even
		// when the boundary splits trades sharing a timestamp.
		last := batch[len(batch)-1]
		deleted, err := a.trades.DeleteThrough(ctx, last.ExecutedAt, last.ID)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades prune: %w", err)
		}

		total += int64(len(batch))
		a.logger.Info("trade batch archived",
			slog.String("path", path),
			slog.Int("archived", len(batch)),
			slog.Int64("deleted", deleted))

		if len(batch) < archiveBatchSize {
			return total, nil
		}
	}
}

// upload sends one export, switching to multipart for payloads at or above
// the S3 part-size minimum.
func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) >= minPartSize {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath partitions exports by the cutoff's year-month, with the run
// time in the filename to keep keys unique across passes.
func (a *Archiver) archivePath(before time.Time) string {
	return fmt.Sprintf("archive/trades/%s/%s.jsonl",
		before.UTC().Format("2006-01"),
		a.now().UTC().Format("20060102T150405.000000000"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
