package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateAssessmentCache drops every cached view of an assessment. Called
// on any authoring edit, including the ones that bump the structural
// version.
func InvalidateAssessmentCache(ctx context.Context, cm *CacheManager, assessmentID uint, creatorID string) {
	SafeDelete(ctx, cm.Assessment,
		fmt.Sprintf("id:%d", assessmentID),
		fmt.Sprintf("parts:%d", assessmentID))

	SafeInvalidatePattern(ctx, cm.Assessment, fmt.Sprintf("creator:%s:*", creatorID))
	SafeInvalidatePattern(ctx, cm.Assessment, "list:*")
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("assessment:%d:*", assessmentID))
}

// InvalidatePoolCache drops cached pool data, including the question id set
// that pool draws read.
func InvalidatePoolCache(ctx context.Context, cm *CacheManager, poolID uint) {
	SafeDelete(ctx, cm.Pool,
		fmt.Sprintf("id:%d", poolID),
		fmt.Sprintf("questions:%d", poolID))
	SafeInvalidatePattern(ctx, cm.Pool, "list:*")
}

// InvalidateQuestionCache drops cached question data and its pool's id set.
func InvalidateQuestionCache(ctx context.Context, cm *CacheManager, questionID, poolID uint) {
	SafeDelete(ctx, cm.Question, fmt.Sprintf("id:%d", questionID))
	SafeDelete(ctx, cm.Pool, fmt.Sprintf("questions:%d", poolID))
	SafeInvalidatePattern(ctx, cm.Question, "list:*")
}

// InvalidateSubmissionCache drops cached submission state after an answer
// save or a completion.
func InvalidateSubmissionCache(ctx context.Context, cm *CacheManager, submissionID uint) {
	SafeDelete(ctx, cm.Submission,
		fmt.Sprintf("id:%d", submissionID),
		fmt.Sprintf("answers:%d", submissionID))
}
