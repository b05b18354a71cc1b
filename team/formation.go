// Package team manages team formation: creation, departure, invitations,
// and the size cap. Members whose admission status turned REJECTED or
// DECLINED are pruned lazily at the start of every size-sensitive
// operation, which keeps the cap consistent with the admission state
// machine without cross-entity triggers.
package team

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hackreg/apperr"
	"hackreg/models"
	"hackreg/tokens"
)

// Notifier dispatches the invitation email. Unlike release
// notifications this path is not best-effort: an invitation nobody
// hears about is undiscoverable, so a send failure fails the invite.
type Notifier interface {
	Send(to, subject, body string) error
}

// Formation coordinates team membership and invitations.
type Formation struct {
	DB       *gorm.DB
	Tokens   *tokens.Store
	Notifier Notifier
	Log      *logrus.Logger

	// BaseURL prefixes the invitation link embedded in the email.
	BaseURL string
}

func NewFormation(db *gorm.DB, tokenStore *tokens.Store, notifier Notifier, log *logrus.Logger, baseURL string) *Formation {
	return &Formation{DB: db, Tokens: tokenStore, Notifier: notifier, Log: log, BaseURL: baseURL}
}

// TeamView is a team plus its computed membership.
type TeamView struct {
	models.Team
	Members []models.Applicant `json:"members"`
}

// Create forms a new team with the owner as sole member.
func (f *Formation) Create(ownerID, name string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("team name must not be empty")
	}
	if utf8.RuneCountInString(name) > models.MaxTeamNameLength {
		return nil, apperr.Validation("team name must be at most %d characters", models.MaxTeamNameLength)
	}

	owner, err := f.getApplicant(ownerID)
	if err != nil {
		return nil, err
	}
	if owner.TeamID != nil {
		return nil, apperr.StateConflict("already on a team")
	}

	team := models.Team{Name: name}
	err = f.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&team).Error; err != nil {
			return err
		}
		return tx.Model(&models.Applicant{}).Where("id = ?", ownerID).
			Update("team_id", team.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// Leave removes the applicant from their team. The last member leaving
// deletes the team and every invitation attached to it.
func (f *Formation) Leave(userID string) error {
	applicant, err := f.getApplicant(userID)
	if err != nil {
		return err
	}
	if applicant.TeamID == nil {
		return apperr.StateConflict("not on a team")
	}
	teamID := *applicant.TeamID

	return f.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Applicant{}).Where("id = ?", userID).
			Update("team_id", nil).Error; err != nil {
			return err
		}
		var remaining int64
		if err := tx.Model(&models.Applicant{}).Where("team_id = ?", teamID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return deleteTeam(tx, teamID)
		}
		return nil
	})
}

// Get returns the applicant's team with its current eligible membership,
// pruning first. Nil when the applicant has no team.
func (f *Formation) Get(userID string) (*TeamView, error) {
	applicant, err := f.getApplicant(userID)
	if err != nil {
		return nil, err
	}
	if applicant.TeamID == nil {
		return nil, nil
	}
	teamID := *applicant.TeamID

	if err := f.DB.Transaction(func(tx *gorm.DB) error {
		return prune(tx, teamID)
	}); err != nil {
		return nil, err
	}

	var team models.Team
	if err := f.DB.First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Pruning emptied and deleted it.
			return nil, nil
		}
		return nil, err
	}
	var members []models.Applicant
	if err := f.DB.Where("team_id = ?", teamID).Order("id").Find(&members).Error; err != nil {
		return nil, err
	}
	return &TeamView{Team: team, Members: members}, nil
}

// Size prunes then counts, so it always reflects the current eligible
// membership, never a stale cached count.
func (f *Formation) Size(teamID uint) (int, error) {
	var count int64
	err := f.DB.Transaction(func(tx *gorm.DB) error {
		if err := prune(tx, teamID); err != nil {
			return err
		}
		return tx.Model(&models.Applicant{}).Where("team_id = ?", teamID).
			Count(&count).Error
	})
	return int(count), err
}

// Invitations lists the invitations of the applicant's team.
func (f *Formation) Invitations(userID string) ([]models.Invitation, error) {
	applicant, err := f.getApplicant(userID)
	if err != nil {
		return nil, err
	}
	if applicant.TeamID == nil {
		return nil, nil
	}
	var invitations []models.Invitation
	err = f.DB.Where("team_id = ?", *applicant.TeamID).Order("id").Find(&invitations).Error
	return invitations, err
}

// Invite asks the applicant behind email to join the inviter's team. A
// prior pending invitation to the same (email, team) pair is superseded.
// The invitation token is issued against the invitee's id and mailed;
// a mail failure is returned to the caller.
func (f *Formation) Invite(inviterID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return apperr.Validation("invalid email address")
	}

	inviter, err := f.getApplicant(inviterID)
	if err != nil {
		return err
	}
	if inviter.TeamID == nil {
		return apperr.StateConflict("you must be on a team to invite others")
	}
	teamID := *inviter.TeamID

	size, err := f.Size(teamID)
	if err != nil {
		return err
	}
	if size >= models.MaxTeamSize {
		return apperr.StateConflict("team already has the maximum allowed size")
	}

	var invitee models.Applicant
	if err := f.DB.First(&invitee, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("no account with that email")
		}
		return err
	}
	if invitee.ID == inviterID {
		return apperr.Validation("you cannot invite yourself")
	}
	if invitee.Role != models.RoleHacker {
		return apperr.Validation("the invited user is not a hacker")
	}

	invitation := models.Invitation{
		Email:       invitee.Email,
		TeamID:      teamID,
		ApplicantID: invitee.ID,
		Status:      models.InvitationPending,
	}
	err = f.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ? AND team_id = ?", email, teamID).
			Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		return tx.Create(&invitation).Error
	})
	if err != nil {
		return err
	}

	token, err := f.Tokens.Issue(invitee.ID, tokens.PurposeTeamInvite, tokens.TeamInviteTTL)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/account/respond-invitation?token=%s&teamId=%d", f.BaseURL, token, teamID)
	body := fmt.Sprintf(`You have been invited to join a team.
Please note that this link will expire in one week.
Click the following link to accept the invitation:
<a href="%s">Join Team</a>`, link)

	if err := f.Notifier.Send(email, "You have been invited to a team", body); err != nil {
		return fmt.Errorf("send invitation email: %w", err)
	}
	return nil
}

// Accept consumes an invitation token and joins the team. Token
// consumption and every check and mutation (prune, capacity,
// invitation lookup, eligibility, join) run in one transaction holding
// a row lock on the team, so two accepts racing for the last slot
// resolve to one join and a rejected accept leaves its token intact.
func (f *Formation) Accept(token string, teamID uint) error {
	return f.DB.Transaction(func(tx *gorm.DB) error {
		inviteeID, err := f.Tokens.ValidateIn(tx, token, tokens.PurposeTeamInvite)
		if err != nil {
			return err
		}

		var team models.Team
		if err := lockForUpdate(tx).First(&team, teamID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("team %d", teamID)
			}
			return err
		}

		if err := prune(tx, teamID); err != nil {
			return err
		}
		var size int64
		if err := tx.Model(&models.Applicant{}).Where("team_id = ?", teamID).
			Count(&size).Error; err != nil {
			return err
		}
		if size >= models.MaxTeamSize {
			return apperr.StateConflict("team is full")
		}

		var invitation models.Invitation
		err = tx.Where("applicant_id = ? AND team_id = ? AND status = ?",
			inviteeID, teamID, models.InvitationPending).First(&invitation).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("no valid invitation for this team")
			}
			return err
		}

		var invitee models.Applicant
		if err := tx.First(&invitee, "id = ?", inviteeID).Error; err != nil {
			return err
		}
		if !eligible(invitee.Status) || invitee.TeamID != nil {
			return apperr.StateConflict("not eligible to join a team")
		}

		if err := tx.Model(&models.Applicant{}).Where("id = ?", inviteeID).
			Update("team_id", teamID).Error; err != nil {
			return err
		}
		return tx.Model(&invitation).Update("status", models.InvitationAccepted).Error
	})
}

// Reject consumes an invitation token and marks the invitation rejected.
// No membership changes.
func (f *Formation) Reject(token string, teamID uint) error {
	return f.DB.Transaction(func(tx *gorm.DB) error {
		inviteeID, err := f.Tokens.ValidateIn(tx, token, tokens.PurposeTeamInvite)
		if err != nil {
			return err
		}

		var invitation models.Invitation
		err = tx.Where("applicant_id = ? AND team_id = ? AND status = ?",
			inviteeID, teamID, models.InvitationPending).First(&invitation).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("no valid invitation for this team")
			}
			return err
		}
		return tx.Model(&invitation).Update("status", models.InvitationRejected).Error
	})
}

// Teammates returns the emails and effective statuses of a team's
// members, preferring a pending decision outcome over the released
// status. Admin review surface.
func (f *Formation) Teammates(teamID uint) ([]Teammate, error) {
	var members []models.Applicant
	if err := f.DB.Where("team_id = ?", teamID).Order("id").Find(&members).Error; err != nil {
		return nil, err
	}
	teammates := make([]Teammate, 0, len(members))
	for _, m := range members {
		status := m.Status
		var decision models.Decision
		if err := f.DB.First(&decision, "applicant_id = ?", m.ID).Error; err == nil {
			status = decision.Outcome
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		teammates = append(teammates, Teammate{Email: m.Email, Status: status})
	}
	return teammates, nil
}

type Teammate struct {
	Email  string        `json:"email"`
	Status models.Status `json:"status"`
}

// eligible lists the statuses allowed to join a team. VERIFIED is
// deliberately absent, matching observed production behavior.
func eligible(s models.Status) bool {
	switch s {
	case models.StatusCreated, models.StatusApplied, models.StatusAccepted, models.StatusConfirmed:
		return true
	}
	return false
}

// prune clears team membership for REJECTED/DECLINED members and deletes
// the team once nobody is left. Must run inside the caller's
// transaction.
func prune(tx *gorm.DB, teamID uint) error {
	if err := tx.Model(&models.Applicant{}).
		Where("team_id = ? AND status IN ?", teamID,
			[]models.Status{models.StatusRejected, models.StatusDeclined}).
		Update("team_id", nil).Error; err != nil {
		return err
	}
	var remaining int64
	if err := tx.Model(&models.Applicant{}).Where("team_id = ?", teamID).
		Count(&remaining).Error; err != nil {
		return err
	}
	if remaining == 0 {
		return deleteTeam(tx, teamID)
	}
	return nil
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

// deleteTeam removes the team and cascades to its invitations.
func deleteTeam(tx *gorm.DB, teamID uint) error {
	if err := tx.Where("team_id = ?", teamID).Delete(&models.Invitation{}).Error; err != nil {
		return err
	}
	res := tx.Delete(&models.Team{}, teamID)
	return res.Error
}

func (f *Formation) getApplicant(id string) (*models.Applicant, error) {
	var applicant models.Applicant
	if err := f.DB.First(&applicant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("applicant %s", id)
		}
		return nil, err
	}
	return &applicant, nil
}
