package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

// mockRepository is an in-memory repositories.Repository. It mimics the
// behaviors the services depend on: record-not-found surfaces as
// gorm.ErrRecordNotFound, the snapshot unique index surfaces as
// gorm.ErrDuplicatedKey, and reads return copies so a caller's edits only
// persist through Update.
type mockRepository struct {
	mu sync.Mutex

	assessments map[uint]*models.Assessment
	parts       map[uint]*models.Part
	pools       map[uint]*models.Pool
	questions   map[uint]*models.Question
	snapshots   map[uint]*models.AssessmentSnapshot
	submissions map[uint]*models.Submission
	answers     map[uint]*models.Answer
	users       map[string]*models.User

	nextID uint

	// Postgres aborts a transaction after any statement error and
	// rejects every later statement until rollback. The mock mirrors
	// that: a duplicate snapshot insert inside WithTransaction poisons
	// the rest of the callback.
	inTx      bool
	txAborted bool

	// One-shot hook run at the top of Snapshot().Create, for racing a
	// competing writer between a version read and the insert.
	beforeSnapshotCreate func()
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		assessments: make(map[uint]*models.Assessment),
		parts:       make(map[uint]*models.Part),
		pools:       make(map[uint]*models.Pool),
		questions:   make(map[uint]*models.Question),
		snapshots:   make(map[uint]*models.AssessmentSnapshot),
		submissions: make(map[uint]*models.Submission),
		answers:     make(map[uint]*models.Answer),
		users:       make(map[string]*models.User),
	}
}

func (m *mockRepository) id() uint {
	m.nextID++
	return m.nextID
}

func (m *mockRepository) Assessment() repositories.AssessmentRepository { return &mockAssessments{m} }
func (m *mockRepository) Part() repositories.PartRepository             { return &mockParts{m} }
func (m *mockRepository) Pool() repositories.PoolRepository             { return &mockPools{m} }
func (m *mockRepository) Question() repositories.QuestionRepository     { return &mockQuestions{m} }
func (m *mockRepository) Snapshot() repositories.SnapshotRepository     { return &mockSnapshots{m} }
func (m *mockRepository) Submission() repositories.SubmissionRepository { return &mockSubmissions{m} }
func (m *mockRepository) Answer() repositories.AnswerRepository         { return &mockAnswers{m} }
func (m *mockRepository) User() repositories.UserRepository             { return &mockUsers{m} }

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	m.mu.Lock()
	m.inTx = true
	m.txAborted = false
	m.mu.Unlock()
	err := fn(m)
	m.mu.Lock()
	m.inTx = false
	m.txAborted = false
	m.mu.Unlock()
	return err
}

// txGuard must be called with m.mu held.
func (m *mockRepository) txGuard() error {
	if m.inTx && m.txAborted {
		return errors.New("current transaction is aborted, commands ignored until end of transaction block (SQLSTATE 25P02)")
	}
	return nil
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// ===== ASSESSMENTS =====

type mockAssessments struct{ m *mockRepository }

func (r *mockAssessments) Create(ctx context.Context, tx *gorm.DB, a *models.Assessment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a.ID = r.m.id()
	cp := *a
	r.m.assessments[a.ID] = &cp
	return nil
}

func (r *mockAssessments) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.assessments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *mockAssessments) GetByIDWithParts(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error) {
	a, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a.Parts = r.m.partsOf(id)
	return a, nil
}

// partsOf returns value copies sorted by position. Callers hold the lock.
func (m *mockRepository) partsOf(assessmentID uint) []models.Part {
	var parts []models.Part
	for _, p := range m.parts {
		if p.AssessmentID == assessmentID {
			parts = append(parts, *p)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Position < parts[j].Position })
	return parts
}

func (r *mockAssessments) Update(ctx context.Context, tx *gorm.DB, a *models.Assessment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.txGuard(); err != nil {
		return err
	}
	if _, ok := r.m.assessments[a.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *a
	cp.Parts = nil
	r.m.assessments[a.ID] = &cp
	return nil
}

func (r *mockAssessments) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.assessments, id)
	return nil
}

func (r *mockAssessments) List(ctx context.Context, tx *gorm.DB, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.Assessment
	for _, a := range r.m.assessments {
		if filters.Context != nil && a.Context != *filters.Context {
			continue
		}
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		cp := *a
		rv = append(rv, &cp)
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv, int64(len(rv)), nil
}

func (r *mockAssessments) GetByContext(ctx context.Context, tx *gorm.DB, context string, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	filters.Context = &context
	return r.List(ctx, tx, filters)
}

func (r *mockAssessments) BumpVersion(ctx context.Context, tx *gorm.DB, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.assessments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.Version++
	a.LiveChanged = true
	return nil
}

func (r *mockAssessments) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AssessmentStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.assessments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.Status = status
	return nil
}

func (r *mockAssessments) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.AssessmentStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stats := &repositories.AssessmentStats{}
	for _, s := range r.m.submissions {
		if s.AssessmentID != id {
			continue
		}
		stats.TotalSubmissions++
		if s.Status == models.SubmissionInProgress {
			stats.InProgress++
		} else {
			stats.CompletedSubmissions++
		}
	}
	return stats, nil
}

func (r *mockAssessments) HasSubmissions(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.submissions {
		if s.AssessmentID == id {
			return true, nil
		}
	}
	return false, nil
}

// ===== PARTS =====

type mockParts struct{ m *mockRepository }

func (r *mockParts) Create(ctx context.Context, tx *gorm.DB, p *models.Part) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p.ID = r.m.id()
	cp := *p
	r.m.parts[p.ID] = &cp
	return nil
}

func (r *mockParts) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Part, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.parts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *mockParts) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Part, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	parts := r.m.partsOf(assessmentID)
	rv := make([]*models.Part, len(parts))
	for i := range parts {
		rv[i] = &parts[i]
	}
	return rv, nil
}

func (r *mockParts) Update(ctx context.Context, tx *gorm.DB, p *models.Part) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.parts[p.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *p
	cp.Picks = existing.Picks
	cp.Draws = existing.Draws
	r.m.parts[p.ID] = &cp
	return nil
}

func (r *mockParts) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.parts, id)
	return nil
}

func (r *mockParts) ReplacePicks(ctx context.Context, tx *gorm.DB, partID uint, picks []models.PartPick) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.parts[partID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Picks = nil
	for i, pick := range picks {
		pick.ID = r.m.id()
		pick.PartID = partID
		pick.Position = i
		p.Picks = append(p.Picks, pick)
	}
	return nil
}

func (r *mockParts) ReplaceDraws(ctx context.Context, tx *gorm.DB, partID uint, draws []models.PoolDrawSpec) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.parts[partID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Draws = nil
	for i, draw := range draws {
		draw.ID = r.m.id()
		draw.PartID = partID
		draw.Position = i
		p.Draws = append(p.Draws, draw)
	}
	return nil
}

func (r *mockParts) Reorder(ctx context.Context, tx *gorm.DB, assessmentID uint, partIDs []uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for pos, id := range partIDs {
		if p, ok := r.m.parts[id]; ok && p.AssessmentID == assessmentID {
			p.Position = pos
		}
	}
	return nil
}

// ===== POOLS =====

type mockPools struct{ m *mockRepository }

func (r *mockPools) Create(ctx context.Context, tx *gorm.DB, p *models.Pool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p.ID = r.m.id()
	cp := *p
	r.m.pools[p.ID] = &cp
	return nil
}

func (r *mockPools) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Pool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.pools[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *mockPools) Update(ctx context.Context, tx *gorm.DB, p *models.Pool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.pools[p.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *p
	r.m.pools[p.ID] = &cp
	return nil
}

func (r *mockPools) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.pools, id)
	return nil
}

func (r *mockPools) List(ctx context.Context, tx *gorm.DB, filters repositories.PoolFilters) ([]*models.Pool, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.Pool
	for _, p := range r.m.pools {
		if filters.Context != nil && p.Context != *filters.Context {
			continue
		}
		if filters.Title != nil && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(*filters.Title)) {
			continue
		}
		cp := *p
		rv = append(rv, &cp)
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv, int64(len(rv)), nil
}

func (r *mockPools) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.PoolStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stats := &repositories.PoolStats{QuestionsByType: make(map[models.QuestionType]int)}
	for _, q := range r.m.questions {
		if q.PoolID == id {
			stats.QuestionCount++
			stats.QuestionsByType[q.Type]++
		}
	}
	return stats, nil
}

func (r *mockPools) QuestionIDs(ctx context.Context, tx *gorm.DB, poolID uint) ([]uint, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var ids []uint
	for _, q := range r.m.questions {
		if q.PoolID == poolID {
			ids = append(ids, q.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *mockPools) IsDrawnBy(ctx context.Context, tx *gorm.DB, poolID uint) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.parts {
		for _, draw := range p.Draws {
			if draw.PoolID == poolID {
				return true, nil
			}
		}
	}
	return false, nil
}

// ===== QUESTIONS =====

type mockQuestions struct{ m *mockRepository }

func (r *mockQuestions) Create(ctx context.Context, tx *gorm.DB, q *models.Question) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	q.ID = r.m.id()
	cp := *q
	r.m.questions[q.ID] = &cp
	return nil
}

func (r *mockQuestions) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	q, ok := r.m.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *q
	if pool, ok := r.m.pools[q.PoolID]; ok {
		cp.Pool = *pool
	}
	return &cp, nil
}

func (r *mockQuestions) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.Question
	for _, id := range ids {
		q, ok := r.m.questions[id]
		if !ok {
			continue
		}
		cp := *q
		if pool, ok := r.m.pools[q.PoolID]; ok {
			cp.Pool = *pool
		}
		rv = append(rv, &cp)
	}
	return rv, nil
}

func (r *mockQuestions) Update(ctx context.Context, tx *gorm.DB, q *models.Question) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.questions[q.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *q
	cp.Pool = models.Pool{}
	r.m.questions[q.ID] = &cp
	return nil
}

func (r *mockQuestions) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.questions[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.m.questions, id)
	return nil
}

func (r *mockQuestions) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.Question
	for _, q := range r.m.questions {
		if filters.PoolID != nil && q.PoolID != *filters.PoolID {
			continue
		}
		if filters.Type != nil && q.Type != *filters.Type {
			continue
		}
		cp := *q
		rv = append(rv, &cp)
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv, int64(len(rv)), nil
}

func (r *mockQuestions) CopyToPool(ctx context.Context, tx *gorm.DB, questionID, poolID uint, createdBy string) (*models.Question, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	q, ok := r.m.questions[questionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *q
	cp.ID = r.m.id()
	cp.PoolID = poolID
	cp.CreatedBy = createdBy
	r.m.questions[cp.ID] = &cp
	rv := cp
	return &rv, nil
}

func (r *mockQuestions) IsUsedByParts(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.parts {
		for _, pick := range p.Picks {
			if pick.QuestionID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

// ===== SNAPSHOTS =====

type mockSnapshots struct{ m *mockRepository }

func (r *mockSnapshots) Create(ctx context.Context, tx *gorm.DB, s *models.AssessmentSnapshot) error {
	r.m.mu.Lock()
	hook := r.m.beforeSnapshotCreate
	r.m.beforeSnapshotCreate = nil
	r.m.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.txGuard(); err != nil {
		return err
	}
	for _, existing := range r.m.snapshots {
		if existing.AssessmentID == s.AssessmentID && existing.Version == s.Version {
			if r.m.inTx {
				r.m.txAborted = true
			}
			return gorm.ErrDuplicatedKey
		}
	}
	s.ID = r.m.id()
	cp := *s
	r.m.snapshots[s.ID] = &cp
	return nil
}

func (r *mockSnapshots) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentSnapshot, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.snapshots[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *mockSnapshots) GetByAssessmentVersion(ctx context.Context, tx *gorm.DB, assessmentID uint, version int) (*models.AssessmentSnapshot, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.txGuard(); err != nil {
		return nil, err
	}
	for _, s := range r.m.snapshots {
		if s.AssessmentID == assessmentID && s.Version == version {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockSnapshots) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.AssessmentSnapshot, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.AssessmentSnapshot
	for _, s := range r.m.snapshots {
		if s.AssessmentID == assessmentID {
			cp := *s
			rv = append(rv, &cp)
		}
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].Version < rv[j].Version })
	return rv, nil
}

func (r *mockSnapshots) HasReferences(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.submissions {
		if s.SnapshotID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockSnapshots) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.snapshots, id)
	return nil
}

// ===== SUBMISSIONS =====

type mockSubmissions struct{ m *mockRepository }

func (r *mockSubmissions) Create(ctx context.Context, tx *gorm.DB, s *models.Submission) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.txGuard(); err != nil {
		return err
	}
	s.ID = r.m.id()
	cp := *s
	r.m.submissions[s.ID] = &cp
	return nil
}

func (r *mockSubmissions) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.submissions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *mockSubmissions) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	s, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.answers {
		if a.SubmissionID == id {
			s.Answers = append(s.Answers, *a)
		}
	}
	sort.Slice(s.Answers, func(i, j int) bool { return s.Answers[i].QuestionID < s.Answers[j].QuestionID })
	return s, nil
}

func (r *mockSubmissions) Update(ctx context.Context, tx *gorm.DB, s *models.Submission) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.submissions[s.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *s
	cp.Answers = nil
	r.m.submissions[s.ID] = &cp
	return nil
}

func (r *mockSubmissions) List(ctx context.Context, tx *gorm.DB, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.Submission
	for _, s := range r.m.submissions {
		if filters.AssessmentID != nil && s.AssessmentID != *filters.AssessmentID {
			continue
		}
		if filters.UserID != nil && s.UserID != *filters.UserID {
			continue
		}
		if filters.Status != nil && s.Status != *filters.Status {
			continue
		}
		cp := *s
		rv = append(rv, &cp)
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv, int64(len(rv)), nil
}

func (r *mockSubmissions) GetByUserAndAssessment(ctx context.Context, tx *gorm.DB, userID string, assessmentID uint) ([]*models.Submission, error) {
	subs, _, err := r.List(ctx, tx, repositories.SubmissionFilters{AssessmentID: &assessmentID, UserID: &userID})
	return subs, err
}

func (r *mockSubmissions) GetInProgress(ctx context.Context, tx *gorm.DB, userID string, assessmentID uint) (*models.Submission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.submissions {
		if s.UserID == userID && s.AssessmentID == assessmentID && s.Status == models.SubmissionInProgress {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockSubmissions) CountByUserAndAssessment(ctx context.Context, tx *gorm.DB, userID string, assessmentID uint) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var count int64
	for _, s := range r.m.submissions {
		if s.UserID == userID && s.AssessmentID == assessmentID {
			count++
		}
	}
	return count, nil
}

func (r *mockSubmissions) GetExpired(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*models.Submission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.Submission
	for _, s := range r.m.submissions {
		if s.Status == models.SubmissionInProgress && s.Deadline != nil && s.Deadline.Before(cutoff) {
			cp := *s
			rv = append(rv, &cp)
		}
	}
	return rv, nil
}

func (r *mockSubmissions) GetCompletedByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Submission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.Submission
	for _, s := range r.m.submissions {
		if s.AssessmentID == assessmentID && s.Status != models.SubmissionInProgress {
			cp := *s
			rv = append(rv, &cp)
		}
	}
	sort.Slice(rv, func(i, j int) bool {
		if rv[i].UserID != rv[j].UserID {
			return rv[i].UserID < rv[j].UserID
		}
		return rv[i].ID < rv[j].ID
	})
	return rv, nil
}

// ===== ANSWERS =====

type mockAnswers struct{ m *mockRepository }

func (r *mockAnswers) Upsert(ctx context.Context, tx *gorm.DB, a *models.Answer) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.answers {
		if existing.SubmissionID == a.SubmissionID && existing.QuestionID == a.QuestionID {
			existing.Data = a.Data
			existing.AutoScore = a.AutoScore
			existing.AnsweredAt = a.AnsweredAt
			a.ID = existing.ID
			return nil
		}
	}
	a.ID = r.m.id()
	cp := *a
	r.m.answers[a.ID] = &cp
	return nil
}

func (r *mockAnswers) GetBySubmission(ctx context.Context, tx *gorm.DB, submissionID uint) ([]*models.Answer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.Answer
	for _, a := range r.m.answers {
		if a.SubmissionID == submissionID {
			cp := *a
			rv = append(rv, &cp)
		}
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].QuestionID < rv[j].QuestionID })
	return rv, nil
}

func (r *mockAnswers) GetBySubmissionAndQuestion(ctx context.Context, tx *gorm.DB, submissionID, questionID uint) (*models.Answer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.answers {
		if a.SubmissionID == submissionID && a.QuestionID == questionID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockAnswers) Update(ctx context.Context, tx *gorm.DB, a *models.Answer) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.answers[a.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *a
	r.m.answers[a.ID] = &cp
	return nil
}

func (r *mockAnswers) GetPendingEvaluation(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Answer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.Answer
	for _, a := range r.m.answers {
		s, ok := r.m.submissions[a.SubmissionID]
		if !ok || s.AssessmentID != assessmentID || s.Status == models.SubmissionInProgress {
			continue
		}
		if a.AutoScore == nil && a.Evaluation.Score == nil {
			cp := *a
			rv = append(rv, &cp)
		}
	}
	return rv, nil
}

func (r *mockAnswers) GetGradingStats(ctx context.Context, tx *gorm.DB, assessmentID uint) (*repositories.GradingStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stats := &repositories.GradingStats{}
	for _, a := range r.m.answers {
		s, ok := r.m.submissions[a.SubmissionID]
		if !ok || s.AssessmentID != assessmentID {
			continue
		}
		stats.TotalAnswers++
		if a.AutoScore != nil {
			stats.AutoScored++
		}
		if a.Evaluation.Score != nil {
			stats.Evaluated++
		}
		if a.AutoScore == nil && a.Evaluation.Score == nil {
			stats.PendingAnswers++
		}
	}
	return stats, nil
}

// ===== USERS =====

type mockUsers struct{ m *mockRepository }

func (r *mockUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *mockUsers) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.User
	for _, id := range ids {
		if u, ok := r.m.users[id]; ok {
			cp := *u
			rv = append(rv, &cp)
		}
	}
	return rv, nil
}

func (r *mockUsers) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rv []*models.User
	for _, u := range r.m.users {
		cp := *u
		rv = append(rv, &cp)
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv, int64(len(rv)), nil
}

func (r *mockUsers) ExistsByID(ctx context.Context, id string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	_, ok := r.m.users[id]
	return ok, nil
}

func (r *mockUsers) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	return ok && u.Role == role, nil
}
