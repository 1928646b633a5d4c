package services

import (
	"context"
	"fmt"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

// requireAuthor resolves the acting user and checks authoring rights.
func requireAuthor(ctx context.Context, repo repositories.Repository, userID string, resourceID interface{}, resource, action string) (*models.User, error) {
	user, err := repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	if !user.CanAuthor() {
		return nil, NewPermissionError(userID, resourceID, resource, action, "author role required")
	}
	return user, nil
}

// requireEvaluator resolves the acting user and checks grading rights.
func requireEvaluator(ctx context.Context, repo repositories.Repository, userID string, resourceID interface{}, resource, action string) (*models.User, error) {
	user, err := repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	if !user.CanEvaluate() {
		return nil, NewPermissionError(userID, resourceID, resource, action, "evaluator role required")
	}
	return user, nil
}
