package repositories

import "context"

// Repository aggregates all entity repositories behind one handle.
type Repository interface {
	// Authoring domain
	Assessment() AssessmentRepository
	Part() PartRepository
	Pool() PoolRepository
	Question() QuestionRepository

	// Delivery domain
	Snapshot() SnapshotRepository
	Submission() SubmissionRepository
	Answer() AnswerRepository

	// User domain (read-only, owned by the identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}
