package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/repositories"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/scoring"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ===== ERROR TRANSLATION =====

// orNotFound maps a repository not-found error to sentinel and passes other errors through.
func orNotFound(err error, sentinel error) error {
	if repositories.IsNotFoundError(err) {
		return sentinel
	}
	return err
}

// ===== PERMISSIONS =====

func requireAdmin(caller Caller, resource string, resourceID uint, action string) error {
	if caller.IsAdmin {
		return nil
	}
	return NewPermissionError(caller.UserID, resourceID, resource, action, "admin role required")
}

// authorizeAttempt allows the attempt owner and admins.
func authorizeAttempt(caller Caller, attempt *models.ExamAttempt, action string) error {
	if caller.IsAdmin || attempt.UserID == caller.UserID {
		return nil
	}
	return NewPermissionError(caller.UserID, attempt.ID, "attempt", action, "not owned by user")
}

// ===== ACTIVITY LOG =====

func logActivity(ctx context.Context, repo repositories.Repository, tx *gorm.DB, attemptID uint,
	activityType models.ActivityType, description string, metadata map[string]interface{}) (*models.ActivityLog, error) {

	log := &models.ActivityLog{
		AttemptID:    attemptID,
		ActivityType: activityType,
		Description:  description,
		Timestamp:    time.Now().UTC(),
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode activity metadata: %w", err)
		}
		log.Metadata = datatypes.JSON(raw)
	}

	if err := repo.Activity().Create(ctx, tx, log); err != nil {
		return nil, err
	}
	return log, nil
}

// ===== SCORING =====

type resultsReadyPolicy int

const (
	keepResultsReady resultsReadyPolicy = iota
	resetResultsReady
	deriveResultsReady
)

// recomputeAttempt locks the attempt, re-runs the scoring engine over its answers and
// persists the aggregates. The returned attempt has Exam loaded.
func recomputeAttempt(ctx context.Context, repo repositories.Repository, tx *gorm.DB, attemptID uint, policy resultsReadyPolicy) (*models.ExamAttempt, error) {
	attempt, err := repo.Attempt().LockForUpdate(ctx, tx, attemptID)
	if err != nil {
		return nil, orNotFound(err, ErrAttemptNotFound)
	}

	exam, err := repo.Exam().GetByID(ctx, tx, attempt.ExamID)
	if err != nil {
		return nil, orNotFound(err, ErrExamNotFound)
	}

	answers, err := repo.Answer().ListByAttempt(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}
	totalQuestions, err := repo.Exam().CountQuestions(ctx, tx, exam.ID)
	if err != nil {
		return nil, err
	}

	inputs := scoring.InputsFrom(answers)
	res := scoring.Compute(scoring.RulesFor(exam), inputs)

	// Questions without an answer row are unanswered too.
	unanswered := res.Unanswered
	if missing := int(totalQuestions) - len(answers); missing > 0 {
		unanswered += missing
	}
	attempt.ApplyResult(res.Score, res.Percentage, res.Correct, res.Wrong, unanswered, res.IsPassed)

	switch policy {
	case resetResultsReady:
		attempt.ResultsReady = false
	case deriveResultsReady:
		attempt.ResultsReady = scoring.ResultsReady(inputs)
	}

	if err := repo.Attempt().SaveAggregates(ctx, tx, attempt); err != nil {
		return nil, err
	}
	attempt.Exam = exam
	return attempt, nil
}

// ===== CLEANUP =====

// deleteAttemptData removes an attempt with its answers, files, activity and proctoring
// rows and returns the storage keys to remove after commit.
func deleteAttemptData(ctx context.Context, repo repositories.Repository, tx *gorm.DB, attemptID uint) ([]string, error) {
	keys, err := repo.Answer().DeleteByAttempt(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := repo.Activity().DeleteByAttempt(ctx, tx, attemptID); err != nil {
		return nil, err
	}
	if err := repo.Proctoring().DeleteByAttempt(ctx, tx, attemptID); err != nil {
		return nil, err
	}
	if err := repo.Attempt().Delete(ctx, tx, attemptID); err != nil {
		return nil, err
	}
	return keys, nil
}

// removeFiles deletes objects from storage. Failures leave orphans behind and are only logged.
func removeFiles(ctx context.Context, provider storage.StorageProvider, logger *slog.Logger, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := provider.Delete(ctx, key); err != nil {
			logger.Warn("Failed to delete stored file", "key", key, "error", err)
		}
	}
}

// uploadFiles stores every upload under prefix. On failure the files already stored are removed.
func uploadFiles(ctx context.Context, provider storage.StorageProvider, logger *slog.Logger, prefix string, uploads []FileUpload) ([]models.StoredFile, error) {
	files := make([]models.StoredFile, 0, len(uploads))
	for _, upload := range uploads {
		key := storage.ObjectKey(prefix, upload.FileName)
		url, err := provider.Upload(ctx, key, upload.Content, upload.Size, upload.ContentType)
		if err != nil {
			removeFiles(ctx, provider, logger, storedKeys(files))
			return nil, fmt.Errorf("failed to upload %s: %w", upload.FileName, err)
		}
		files = append(files, models.StoredFile{
			StorageKey:  key,
			URL:         url,
			FileName:    upload.FileName,
			ContentType: upload.ContentType,
			Size:        upload.Size,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return files, nil
}

func storedKeys(files []models.StoredFile) []string {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.StorageKey)
	}
	return keys
}
