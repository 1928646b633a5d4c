package validator

import (
	"time"

	"github.com/sakai-mirror/mneme/internal/models"
)

// ValidateSubmissionBegin checks whether a new submission may start. Dates
// and tries are the effective, per-user values (special access already
// applied).
func (v *Validator) ValidateSubmissionBegin(status models.AssessmentStatus, open, acceptUntil *time.Time, submissionCount int, triesAllowed *int) ValidationErrors {
	var errors ValidationErrors
	now := time.Now()

	if status != models.AssessmentPublished {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: "assessment is not published",
			Value:   status,
			Rule:    "business_logic",
		})
	}

	if open != nil && now.Before(*open) {
		errors = append(errors, ValidationError{
			Field:   "open_date",
			Message: "assessment is not open yet",
			Value:   open,
			Rule:    "business_logic",
		})
	}

	// The accept-until date is the hard close; the due date only marks work
	// as late.
	if acceptUntil != nil && now.After(*acceptUntil) {
		errors = append(errors, ValidationError{
			Field:   "accept_until_date",
			Message: "assessment is closed",
			Value:   acceptUntil,
			Rule:    "business_logic",
		})
	}

	if triesAllowed != nil && submissionCount >= *triesAllowed {
		errors = append(errors, ValidationError{
			Field:   "tries_allowed",
			Message: "no tries remaining",
			Value:   submissionCount,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidatePublish checks that an assessment is structurally complete enough
// to deliver. poolCounts maps pool id to its current question count and
// must cover every pool any part draws from.
func (v *Validator) ValidatePublish(assessment *models.Assessment, poolCounts map[uint]int) ValidationErrors {
	var errors ValidationErrors

	if len(assessment.Parts) == 0 {
		errors = append(errors, ValidationError{
			Field:   "parts",
			Message: "assessment has no parts",
			Rule:    "business_logic",
		})
	}

	for _, part := range assessment.Parts {
		switch part.Kind {
		case models.PartManual:
			if len(part.Picks) == 0 {
				errors = append(errors, ValidationError{
					Field:   "picks",
					Message: "manual part has no questions",
					Value:   part.ID,
					Rule:    "business_logic",
				})
			}
		case models.PartDraw:
			if len(part.Draws) == 0 {
				errors = append(errors, ValidationError{
					Field:   "draws",
					Message: "draw part has no pool rules",
					Value:   part.ID,
					Rule:    "business_logic",
				})
			}
			for _, draw := range part.Draws {
				if poolCounts[draw.PoolID] < draw.Count {
					errors = append(errors, ValidationError{
						Field:   "draws",
						Message: "pool has fewer questions than the draw count",
						Value:   draw.PoolID,
						Rule:    "business_logic",
					})
				}
			}
		}
	}

	if assessment.OpenDate != nil && assessment.DueDate != nil && assessment.DueDate.Before(*assessment.OpenDate) {
		errors = append(errors, ValidationError{
			Field:   "due_date",
			Message: "due date is before open date",
			Rule:    "business_logic",
		})
	}
	if assessment.DueDate != nil && assessment.AcceptUntilDate != nil && assessment.AcceptUntilDate.Before(*assessment.DueDate) {
		errors = append(errors, ValidationError{
			Field:   "accept_until_date",
			Message: "accept-until date is before due date",
			Rule:    "business_logic",
		})
	}

	return errors
}
