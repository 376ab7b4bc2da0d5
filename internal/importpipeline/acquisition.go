package importpipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/keeperdata/keeperdata/internal/blobstore"
	"github.com/keeperdata/keeperdata/internal/crypto"
	"github.com/keeperdata/keeperdata/internal/dataset"
	"github.com/keeperdata/keeperdata/internal/kderrors"
	"github.com/keeperdata/keeperdata/internal/logging"
	"github.com/keeperdata/keeperdata/internal/types"
)

// contentHashMetadataKey is the user-metadata key the internal store
// carries the ciphertext's content hash under, so re-runs can detect
// an unchanged file without re-downloading the external copy. The key
// keeps its historical MD5 name but holds a hex SHA-256 digest.
const contentHashMetadataKey = "x-kd-md5"

// Acquisition implements AcquisitionPipeline (spec.md §4.3).
type Acquisition struct {
	External blobstore.BlobStore
	Internal blobstore.BlobStore
	Datasets *dataset.Registry
	Crypto   crypto.StreamingCrypto
	Reporter ImportReporter
	Salt     string
	Logger   *logging.Logger
}

// Run executes acquisition for importID end to end: enumerate, copy,
// verify, record — one file at a time, FIFO by key.
func (a *Acquisition) Run(ctx context.Context, importID string) error {
	now := time.Now().UTC()
	if _, err := a.Reporter.UpdateAcquisitionPhase(ctx, importID, func(p *types.PhaseRecord) {
		p.Status = types.PhaseRunning
		p.StartedAt = &now
	}); err != nil {
		return err
	}

	keys, err := a.enumerate(ctx)
	if err != nil {
		return err
	}

	filesFailed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			_, _ = a.Reporter.UpdateAcquisitionPhase(ctx, importID, func(p *types.PhaseRecord) {
				p.Status = types.PhaseFailed
				p.Cancelled = true
			})
			return err
		}

		datasetName, _, ok := a.Datasets.Match(key)
		if !ok {
			_, _ = a.Reporter.UpdateAcquisitionPhase(ctx, importID, func(p *types.PhaseRecord) {
				p.FilesDiscovered++
				p.FilesSkipped++
			})
			continue
		}

		_, _ = a.Reporter.UpdateAcquisitionPhase(ctx, importID, func(p *types.PhaseRecord) {
			p.FilesDiscovered++
		})

		status, fileErr := a.acquireOne(ctx, importID, key, datasetName)
		switch status {
		case types.FileFailed:
			filesFailed++
			_, _ = a.Reporter.UpdateAcquisitionPhase(ctx, importID, func(p *types.PhaseRecord) {
				p.FilesFailed++
			})
		case types.FileSkipped:
			_, _ = a.Reporter.UpdateAcquisitionPhase(ctx, importID, func(p *types.PhaseRecord) {
				p.FilesSkipped++
			})
		default:
			_, _ = a.Reporter.UpdateAcquisitionPhase(ctx, importID, func(p *types.PhaseRecord) {
				p.FilesProcessed++
			})
		}
		if fileErr != nil && a.Logger != nil {
			a.Logger.Warn("acquisition: file failed", map[string]any{"key": key, "error": fileErr.Error()})
		}
	}

	completedAt := time.Now().UTC()
	finalStatus := types.PhaseCompleted
	if filesFailed > 0 {
		finalStatus = types.PhaseFailed
	}
	_, err = a.Reporter.UpdateAcquisitionPhase(ctx, importID, func(p *types.PhaseRecord) {
		p.Status = finalStatus
		p.CompletedAt = &completedAt
	})
	return err
}

// enumerate lists every external key in deterministic FIFO (sorted)
// order, draining List's pagination.
func (a *Acquisition) enumerate(ctx context.Context) ([]string, error) {
	var keys []string
	token := ""
	for {
		page, err := a.External.List(ctx, "", blobstore.MaxPageSize, token)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			keys = append(keys, item.Key)
		}
		if !page.IsTruncated {
			break
		}
		token = page.NextToken
	}
	return keys, nil
}

// acquireOne hashes one ciphertext from External, and only when the
// internal store doesn't already carry a matching copy (spec.md
// §4.3's check-then-write order) streams it into Internal, validates
// the derived password decrypts cleanly, and persists a FileRecord.
func (a *Acquisition) acquireOne(ctx context.Context, importID, key, datasetName string) (types.FileProcessingStatus, error) {
	rec := types.FileRecord{ImportID: importID, FileKey: key, Dataset: datasetName, SourceKey: key}

	contentHash, size, err := a.hashExternal(ctx, key)
	if err != nil {
		rec.Status = types.FileFailed
		rec.Error = err.Error()
		_ = a.Reporter.UpsertFileReport(ctx, rec)
		return types.FileFailed, err
	}
	rec.FileSize = size
	rec.ContentHash = contentHash

	unchanged, headErr := a.isUnchanged(ctx, key, contentHash)
	if headErr == nil && unchanged {
		rec.Status = types.FileSkipped
		acquiredAt := time.Now().UTC()
		rec.AcquiredAt = &acquiredAt
		_ = a.Reporter.UpsertFileReport(ctx, rec)
		return types.FileSkipped, nil
	}

	src, err := a.External.Download(ctx, key)
	if err != nil {
		rec.Status = types.FileFailed
		rec.Error = err.Error()
		_ = a.Reporter.UpsertFileReport(ctx, rec)
		return types.FileFailed, err
	}

	w, err := a.Internal.OpenWrite(ctx, key, "application/octet-stream", nil)
	if err != nil {
		_ = src.Close()
		rec.Status = types.FileFailed
		rec.Error = err.Error()
		_ = a.Reporter.UpsertFileReport(ctx, rec)
		return types.FileFailed, err
	}

	_, copyErr := io.Copy(w, src)
	closeErr := w.Close()
	_ = src.Close()
	if copyErr != nil {
		rec.Status = types.FileFailed
		rec.Error = copyErr.Error()
		_ = a.Reporter.UpsertFileReport(ctx, rec)
		return types.FileFailed, copyErr
	}
	if closeErr != nil {
		rec.Status = types.FileFailed
		rec.Error = closeErr.Error()
		_ = a.Reporter.UpsertFileReport(ctx, rec)
		return types.FileFailed, closeErr
	}

	if err := a.Internal.SetMetadata(ctx, key, map[string]string{contentHashMetadataKey: contentHash}); err != nil && a.Logger != nil {
		a.Logger.Warn("acquisition: failed to stamp content hash metadata", map[string]any{"key": key, "error": err.Error()})
	}

	password, err := crypto.DerivePassword(dataset.Basename(key))
	if err != nil {
		rec.Status = types.FileFailed
		rec.Error = err.Error()
		_ = a.Reporter.UpsertFileReport(ctx, rec)
		return types.FileFailed, err
	}

	validateStart := time.Now()
	plaintext, err := a.Internal.Download(ctx, key)
	if err != nil {
		rec.Status = types.FileFailed
		rec.Error = err.Error()
		_ = a.Reporter.UpsertFileReport(ctx, rec)
		return types.FileFailed, err
	}
	decErr := a.Crypto.DecryptStream(ctx, plaintext, io.Discard, password, a.Salt, 0, nil)
	_ = plaintext.Close()
	decryptionDuration := time.Since(validateStart)

	if decErr != nil {
		rec.Status = types.FileFailed
		rec.Error = fmt.Sprintf("password validation failed: %v", decErr)
		rec.DecryptionMillis = decryptionDuration.Milliseconds()
		_ = a.Reporter.UpsertFileReport(ctx, rec)
		return types.FileFailed, decErr
	}

	acquiredAt := time.Now().UTC()
	rec.Status = types.FileAcquired
	rec.AcquiredAt = &acquiredAt
	rec.DecryptionMillis = decryptionDuration.Milliseconds()
	if err := a.Reporter.UpsertFileReport(ctx, rec); err != nil {
		return types.FileFailed, err
	}
	return types.FileAcquired, nil
}

// hashExternal streams key from External purely to compute its SHA-256
// content hash and size, without touching the internal store — the
// first half of the check-then-write skip-on-hash-match path.
func (a *Acquisition) hashExternal(ctx context.Context, key string) (string, int64, error) {
	src, err := a.External.Download(ctx, key)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, src)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

func (a *Acquisition) isUnchanged(ctx context.Context, key, contentHash string) (bool, error) {
	md, err := a.Internal.Head(ctx, key)
	if err != nil {
		if errors.Is(err, kderrors.ErrStorageNotFound) {
			return false, nil
		}
		return false, err
	}
	return md.UserMetadata[contentHashMetadataKey] == contentHash, nil
}
