// Package admission owns the applicant status state machine, the
// pending-decision ledger, and the release protocol that commits
// decisions into applicant statuses.
package admission

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hackreg/apperr"
	"hackreg/blacklist"
	"hackreg/models"
	"hackreg/tokens"
)

// Notifier dispatches one outbound message. Release notifications are
// best-effort; a failure is logged, never surfaced.
type Notifier interface {
	Send(to, subject, body string) error
}

// Questions validates an answer map against the current application
// schema. It returns per-question messages for invalid answers and
// the subset of answers belonging to known questions.
type Questions interface {
	ValidateAnswers(answers models.AnswerMap) (map[string]string, models.AnswerMap, error)
}

const statusUpdateSubject = "Application status update"

// Engine coordinates admission decisions for applicants. All multi-row
// mutations run inside store transactions; notification dispatch happens
// strictly after commit.
type Engine struct {
	DB        *gorm.DB
	Tokens    *tokens.Store
	Blacklist *blacklist.Store
	Questions Questions
	Notifier  Notifier
	Log       *logrus.Logger
	Now       func() time.Time
}

func NewEngine(db *gorm.DB, tokenStore *tokens.Store, blacklistStore *blacklist.Store, questions Questions, notifier Notifier, log *logrus.Logger) *Engine {
	return &Engine{
		DB:        db,
		Tokens:    tokenStore,
		Blacklist: blacklistStore,
		Questions: questions,
		Notifier:  notifier,
		Log:       log,
		Now:       time.Now,
	}
}

// ReviewCandidate is one applicant surfaced for manual review, annotated
// with the advisory blacklist flag.
type ReviewCandidate struct {
	models.Applicant
	BlacklistHit bool `json:"blacklist_hit"`
}

// DecisionLedger groups all pending decisions by outcome.
type DecisionLedger struct {
	Accepted   []models.Decision `json:"accepted"`
	Rejected   []models.Decision `json:"rejected"`
	Waitlisted []models.Decision `json:"waitlisted"`
}

// Decide records a pending decision for every listed applicant that is
// currently APPLIED or WAITLISTED, overwriting any existing pending
// decision. Applicants in other statuses are skipped without error so
// admins can repeat bulk actions over mixed selections. An unknown id
// fails the whole call.
func (e *Engine) Decide(outcome models.Status, ids []string) error {
	switch outcome {
	case models.StatusAccepted, models.StatusRejected, models.StatusWaitlisted:
	default:
		return apperr.Validation("%q is not a releasable outcome", outcome)
	}

	for _, id := range ids {
		err := e.DB.Transaction(func(tx *gorm.DB) error {
			var applicant models.Applicant
			if err := lockForUpdate(tx).First(&applicant, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("applicant %s", id)
				}
				return err
			}
			if !applicant.Status.Decidable() {
				return nil
			}
			decision := models.Decision{ApplicantID: id, Outcome: outcome}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "applicant_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"outcome", "updated_at"}),
			}).Create(&decision).Error
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ReleaseAll releases every pending decision.
func (e *Engine) ReleaseAll() error {
	return e.release(nil)
}

// ReleaseDecisions releases the pending decisions of the given
// applicants.
func (e *Engine) ReleaseDecisions(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return e.release(ids)
}

// release applies each targeted decision: within one transaction the
// applicant status is updated only if it is still APPLIED or WAITLISTED,
// and the decision row is deleted regardless. A decision whose
// precondition went stale is discarded, not retried. Notifications go
// out after commit, concurrently, with the template for the outcome
// recorded at decide time.
func (e *Engine) release(ids []string) error {
	var decisions []models.Decision
	q := e.DB.Order("id")
	if ids != nil {
		q = q.Where("applicant_id IN ?", ids)
	}
	if err := q.Find(&decisions).Error; err != nil {
		return err
	}
	if len(decisions) == 0 {
		return nil
	}

	settings, err := models.GetSettings(e.DB)
	if err != nil {
		return err
	}

	type dispatch struct {
		email   string
		outcome models.Status
	}
	var dispatches []dispatch

	for _, decision := range decisions {
		var applicant models.Applicant
		if err := e.DB.First(&applicant, "id = ?", decision.ApplicantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Orphaned ledger row; drop it.
				if err := e.DB.Delete(&models.Decision{}, decision.ID).Error; err != nil {
					return err
				}
				continue
			}
			return err
		}

		err := e.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Applicant{}).
				Where("id = ? AND status IN ?", decision.ApplicantID,
					[]models.Status{models.StatusApplied, models.StatusWaitlisted}).
				Update("status", decision.Outcome).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Decision{}, decision.ID).Error
		})
		if err != nil {
			return err
		}

		dispatches = append(dispatches, dispatch{email: applicant.Email, outcome: decision.Outcome})
	}

	var wg sync.WaitGroup
	for _, d := range dispatches {
		wg.Add(1)
		go func(d dispatch) {
			defer wg.Done()
			body := settings.Template(d.outcome)
			if err := e.Notifier.Send(d.email, statusUpdateSubject, body); err != nil {
				e.Log.WithFields(logrus.Fields{
					"email":   d.email,
					"outcome": d.outcome,
				}).WithError(err).Warn("release notification failed")
			}
		}(d)
	}
	wg.Wait()
	return nil
}

// GetDecisions returns the pending ledger grouped by outcome.
func (e *Engine) GetDecisions() (*DecisionLedger, error) {
	var decisions []models.Decision
	if err := e.DB.Order("id").Find(&decisions).Error; err != nil {
		return nil, err
	}
	ledger := &DecisionLedger{}
	for _, d := range decisions {
		switch d.Outcome {
		case models.StatusAccepted:
			ledger.Accepted = append(ledger.Accepted, d)
		case models.StatusRejected:
			ledger.Rejected = append(ledger.Rejected, d)
		case models.StatusWaitlisted:
			ledger.Waitlisted = append(ledger.Waitlisted, d)
		}
	}
	return ledger, nil
}

// RemoveDecisions discards pending decisions without applying them.
func (e *Engine) RemoveDecisions(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return e.DB.Where("applicant_id IN ?", ids).Delete(&models.Decision{}).Error
}

// GetAppliedUser returns the next applicant awaiting manual review: one
// with a submitted application, the requested role, and no pending
// decision yet. Returns nil when the queue is exhausted. The result
// carries the advisory blacklist flag; it annotates review, nothing
// more.
func (e *Engine) GetAppliedUser(role models.Role) (*ReviewCandidate, error) {
	var applicant models.Applicant
	err := e.DB.
		Joins("LEFT JOIN decisions ON decisions.applicant_id = applicants.id").
		Where("applicants.status IN ?", []models.Status{models.StatusApplied, models.StatusWaitlisted}).
		Where("applicants.role = ?", role).
		Where("decisions.id IS NULL").
		Order("applicants.team_id ASC").
		First(&applicant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	hit, err := e.screen(&applicant)
	if err != nil {
		return nil, err
	}
	return &ReviewCandidate{Applicant: applicant, BlacklistHit: hit}, nil
}

// Screen computes the advisory blacklist flag for one applicant.
func (e *Engine) Screen(id string) (bool, error) {
	applicant, err := e.getApplicant(id)
	if err != nil {
		return false, err
	}
	return e.screen(applicant)
}

func (e *Engine) screen(applicant *models.Applicant) (bool, error) {
	lists, err := e.Blacklist.Lists()
	if err != nil {
		return false, err
	}
	return blacklist.Check(applicant.Email, applicant.FullName(), applicant.Application.Joined(), lists), nil
}

// CanApply reports whether new applications are currently accepted,
// considering the open flag, the deadline, and the applicant cap.
func (e *Engine) CanApply() (bool, error) {
	settings, err := models.GetSettings(e.DB)
	if err != nil {
		return false, err
	}
	if !settings.ApplicationOpen {
		return false, nil
	}
	if settings.ApplicationDeadline != nil && !e.Now().Before(*settings.ApplicationDeadline) {
		return false, nil
	}
	if settings.ApplicationLimit != nil {
		var count int64
		err := e.DB.Model(&models.Applicant{}).
			Where("status IN ?", []models.Status{models.StatusApplied, models.StatusAccepted, models.StatusConfirmed}).
			Count(&count).Error
		if err != nil {
			return false, err
		}
		if count >= int64(*settings.ApplicationLimit) {
			return false, nil
		}
	}
	return true, nil
}

// UpdateApplication saves the applicant's answers. Editing while APPLIED
// reverts the applicant to VERIFIED and discards any pending decision,
// the only backward transition in the state machine.
func (e *Engine) UpdateApplication(id string, answers models.AnswerMap) (map[string]string, error) {
	open, err := e.CanApply()
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, apperr.StateConflict("applications are closed")
	}

	applicant, err := e.getApplicant(id)
	if err != nil {
		return nil, err
	}
	switch applicant.Status {
	case models.StatusCreated, models.StatusVerified, models.StatusApplied:
	default:
		return nil, apperr.StateConflict("application can no longer be edited in status %s", applicant.Status)
	}

	fieldErrors, filtered, err := e.Questions.ValidateAnswers(answers)
	if err != nil {
		return nil, err
	}

	err = e.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"application": filtered}
		if applicant.Status == models.StatusApplied {
			updates["status"] = models.StatusVerified
		}
		if err := tx.Model(&models.Applicant{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("applicant_id = ?", id).Delete(&models.Decision{}).Error
	})
	if err != nil {
		return nil, err
	}
	return fieldErrors, nil
}

// SubmitApplication validates the stored answers and, if clean, moves
// the applicant from VERIFIED to APPLIED and sends the submission
// notification. Returns per-question validation messages otherwise.
func (e *Engine) SubmitApplication(id string) (map[string]string, error) {
	open, err := e.CanApply()
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, apperr.StateConflict("applications are closed")
	}

	applicant, err := e.getApplicant(id)
	if err != nil {
		return nil, err
	}
	if applicant.Status != models.StatusVerified {
		return nil, apperr.StateConflict("cannot submit in status %s", applicant.Status)
	}

	fieldErrors, _, err := e.Questions.ValidateAnswers(applicant.Application)
	if err != nil {
		return nil, err
	}
	if len(fieldErrors) > 0 {
		return fieldErrors, nil
	}

	err = e.DB.Model(&models.Applicant{}).Where("id = ?", id).
		Update("status", models.StatusApplied).Error
	if err != nil {
		return nil, err
	}

	settings, err := models.GetSettings(e.DB)
	if err != nil {
		return nil, err
	}
	if err := e.Notifier.Send(applicant.Email, "Thanks for submitting!", settings.SubmitTemplate); err != nil {
		e.Log.WithField("email", applicant.Email).WithError(err).Warn("submit notification failed")
	}
	return nil, nil
}

// WithdrawApplication reverts a submitted application to VERIFIED and
// discards any pending decision.
func (e *Engine) WithdrawApplication(id string) error {
	applicant, err := e.getApplicant(id)
	if err != nil {
		return err
	}
	if applicant.Status != models.StatusApplied {
		return apperr.StateConflict("no submitted application to withdraw")
	}
	return e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Applicant{}).Where("id = ?", id).
			Update("status", models.StatusVerified).Error; err != nil {
			return err
		}
		return tx.Where("applicant_id = ?", id).Delete(&models.Decision{}).Error
	})
}

// Confirm RSVPs an accepted applicant. The confirmation window is an
// open interval: an attempt exactly at or after the deadline fails.
func (e *Engine) Confirm(id string) error {
	applicant, err := e.getApplicant(id)
	if err != nil {
		return err
	}
	if applicant.Status != models.StatusAccepted {
		return apperr.StateConflict("only accepted applicants can confirm")
	}
	settings, err := models.GetSettings(e.DB)
	if err != nil {
		return err
	}
	if settings.ConfirmBy != nil && !e.Now().Before(*settings.ConfirmBy) {
		return apperr.StateConflict("confirmation deadline has passed")
	}
	if err := e.DB.Model(&models.Applicant{}).Where("id = ?", id).
		Update("status", models.StatusConfirmed).Error; err != nil {
		return err
	}
	if err := e.Notifier.Send(applicant.Email, "Thanks for your RSVP!", settings.ConfirmTemplate); err != nil {
		e.Log.WithField("email", applicant.Email).WithError(err).Warn("confirm notification failed")
	}
	return nil
}

// Decline turns down an acceptance. Unlike Confirm it is allowed even
// after the confirmation deadline.
func (e *Engine) Decline(id string) error {
	applicant, err := e.getApplicant(id)
	if err != nil {
		return err
	}
	if applicant.Status != models.StatusAccepted {
		return apperr.StateConflict("only accepted applicants can decline")
	}
	if err := e.DB.Model(&models.Applicant{}).Where("id = ?", id).
		Update("status", models.StatusDeclined).Error; err != nil {
		return err
	}
	settings, err := models.GetSettings(e.DB)
	if err != nil {
		return err
	}
	if err := e.Notifier.Send(applicant.Email, "Thanks for your RSVP!", settings.DeclineTemplate); err != nil {
		e.Log.WithField("email", applicant.Email).WithError(err).Warn("decline notification failed")
	}
	return nil
}

// VerifyEmail consumes an email-verification token and promotes the
// subject from CREATED to VERIFIED. Tokens surviving a prior
// verification are invalid by construction, so a repeat call fails at
// the token check.
func (e *Engine) VerifyEmail(tokenID string) (*models.Applicant, error) {
	subjectID, err := e.Tokens.Validate(tokenID, tokens.PurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	applicant, err := e.getApplicant(subjectID)
	if err != nil {
		return nil, err
	}
	if applicant.Status == models.StatusCreated {
		if err := e.DB.Model(&models.Applicant{}).Where("id = ?", subjectID).
			Update("status", models.StatusVerified).Error; err != nil {
			return nil, err
		}
		applicant.Status = models.StatusVerified
	}
	return applicant, nil
}

// SetStatuses force-sets the status of the listed applicants and, in the
// same transaction, discards their pending decisions so the ledger
// invariant holds.
func (e *Engine) SetStatuses(status models.Status, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Applicant{}).Where("id IN ?", ids).
			Update("status", status).Error; err != nil {
			return err
		}
		if !status.Decidable() {
			return tx.Where("applicant_id IN ?", ids).Delete(&models.Decision{}).Error
		}
		return nil
	})
}

// lockForUpdate takes a row lock where the dialect supports it. SQLite
// rejects FOR UPDATE but serializes writers on its own, so skipping the
// clause there keeps the same guarantee.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (e *Engine) getApplicant(id string) (*models.Applicant, error) {
	var applicant models.Applicant
	if err := e.DB.First(&applicant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("applicant %s", id)
		}
		return nil, err
	}
	return &applicant, nil
}
