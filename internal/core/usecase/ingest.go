package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
)

// IngestEnvelopeUseCase accepts uploaded envelopes, persists their metadata
// and schedules the background processing task. Parsing never happens on the
// request path.
type IngestEnvelopeUseCase struct {
	store     ports.Store
	storage   ports.BlobStorage
	runner    ports.TaskRunner
	batches   *ProcessBatchUseCase
	envelopes *ProcessAuthorizationUseCase
	log       *slog.Logger
}

func NewIngestEnvelopeUseCase(
	store ports.Store,
	storage ports.BlobStorage,
	runner ports.TaskRunner,
	batches *ProcessBatchUseCase,
	envelopes *ProcessAuthorizationUseCase,
	log *slog.Logger,
) *IngestEnvelopeUseCase {
	return &IngestEnvelopeUseCase{
		store:     store,
		storage:   storage,
		runner:    runner,
		batches:   batches,
		envelopes: envelopes,
		log:       log,
	}
}

func (uc *IngestEnvelopeUseCase) UploadBatch(
	ctx context.Context,
	userID int64,
	fileName string,
	body io.Reader,
	stateCode string,
	kind domain.BatchKind,
	description string,
) (*domain.Batch, error) {
	if err := validateUpload(userID, fileName, body, ".xml"); err != nil {
		return nil, err
	}
	if kind != domain.KindRemittance && kind != domain.KindWithdrawal {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload batch", fmt.Errorf("unknown batch kind %q", kind))
	}
	stateCode = strings.ToUpper(strings.TrimSpace(stateCode))
	if len(stateCode) != 2 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload batch", fmt.Errorf("bad state code %q", stateCode))
	}

	key, err := uc.storage.Save(ctx, fileName, body)
	if err != nil {
		return nil, fmt.Errorf("save batch file: %w", err)
	}

	batch := &domain.Batch{
		FileName:       fileName,
		StoragePath:    key,
		UploadedAt:     time.Now().UTC(),
		Status:         domain.BatchPending,
		StateCode:      stateCode,
		Kind:           kind,
		UploaderUserID: userID,
		Description:    strings.TrimSpace(description),
	}
	id, err := uc.store.InsertBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	taskID := uc.runner.Enqueue(
		fmt.Sprintf("process %s batch %q", strings.ToLower(string(kind)), fileName),
		func(ctx context.Context, progress func(int)) error {
			return uc.batches.Run(ctx, id, progress)
		},
	)
	if err := uc.store.SetBatchTask(ctx, id, taskID); err != nil {
		return nil, fmt.Errorf("attach batch task: %w", err)
	}
	batch.TaskID = taskID

	uc.log.Info("batch_uploaded",
		"batch_id", id,
		"kind", string(kind),
		"file_name", fileName,
		"task_id", taskID,
		"user_id", userID,
	)
	return batch, nil
}

func (uc *IngestEnvelopeUseCase) UploadCancellation(
	ctx context.Context,
	userID int64,
	fileName string,
	body io.Reader,
) (*domain.CancellationAuthorization, error) {
	if err := validateUpload(userID, fileName, body, ".txt"); err != nil {
		return nil, err
	}

	key, err := uc.storage.Save(ctx, fileName, body)
	if err != nil {
		return nil, fmt.Errorf("save cancellation file: %w", err)
	}

	auth := &domain.CancellationAuthorization{
		FileName:       fileName,
		StoragePath:    key,
		Status:         domain.AuthorizationPending,
		UploadedAt:     time.Now().UTC(),
		UploaderUserID: userID,
	}
	id, err := uc.store.InsertAuthorization(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("insert authorization: %w", err)
	}

	taskID := uc.runner.Enqueue(
		fmt.Sprintf("process cancellation file %q", fileName),
		func(ctx context.Context, progress func(int)) error {
			return uc.envelopes.Run(ctx, id, progress)
		},
	)
	if err := uc.store.SetAuthorizationTask(ctx, id, taskID); err != nil {
		return nil, fmt.Errorf("attach authorization task: %w", err)
	}
	auth.TaskID = taskID

	uc.log.Info("cancellation_uploaded",
		"authorization_id", id,
		"file_name", fileName,
		"task_id", taskID,
		"user_id", userID,
	)
	return auth, nil
}

func validateUpload(userID int64, fileName string, body io.Reader, wantExt string) error {
	if userID <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("missing acting user id"))
	}
	if strings.TrimSpace(fileName) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("missing file name"))
	}
	if !strings.EqualFold(filepath.Ext(fileName), wantExt) {
		return domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("file %q must have extension %s", fileName, wantExt))
	}
	if body == nil {
		return domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty body"))
	}
	return nil
}
