package team

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hackreg/apperr"
	"hackreg/config"
	"hackreg/models"
	"hackreg/tokens"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent int
	fail bool
}

func (f *fakeNotifier) Send(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("smtp down")
	}
	f.sent++
	return nil
}

type fixture struct {
	formation *Formation
	db        *gorm.DB
	notifier  *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))

	log := logrus.New()
	log.SetOutput(io.Discard)

	notifier := &fakeNotifier{}
	formation := NewFormation(db, tokens.NewStore(db), notifier, log, "http://localhost:5000")
	return &fixture{formation: formation, db: db, notifier: notifier}
}

func (fx *fixture) addApplicant(t *testing.T, email string, status models.Status) *models.Applicant {
	t.Helper()
	applicant := &models.Applicant{Email: email, Role: models.RoleHacker, Status: status}
	require.NoError(t, fx.db.Create(applicant).Error)
	return applicant
}

// inviteToken digs the issued invitation token out of the store for an
// invitee, standing in for reading the email.
func (fx *fixture) inviteToken(t *testing.T, applicantID string) string {
	t.Helper()
	var token models.Token
	require.NoError(t, fx.db.First(&token,
		"subject_id = ? AND purpose = ?", applicantID, tokens.PurposeTeamInvite).Error)
	return token.ID
}

// invitedMember sets up a team member with a pending invitation and
// returns the owner, the invitee, the team id, and the invite token.
func (fx *fixture) invitedMember(t *testing.T, ownerEmail, inviteeEmail string) (*models.Applicant, *models.Applicant, uint, string) {
	t.Helper()
	owner := fx.addApplicant(t, ownerEmail, models.StatusConfirmed)
	invitee := fx.addApplicant(t, inviteeEmail, models.StatusApplied)
	created, err := fx.formation.Create(owner.ID, "Team "+ownerEmail)
	require.NoError(t, err)
	require.NoError(t, fx.formation.Invite(owner.ID, invitee.Email))
	return owner, invitee, created.ID, fx.inviteToken(t, invitee.ID)
}

func TestCreateTeam(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)

	created, err := fx.formation.Create(owner.ID, "  Rubber Ducks  ")
	require.NoError(t, err)
	assert.Equal(t, "Rubber Ducks", created.Name)

	view, err := fx.formation.Get(owner.ID)
	require.NoError(t, err)
	require.NotNil(t, view)
	require.Len(t, view.Members, 1)
	assert.Equal(t, owner.ID, view.Members[0].ID)
}

func TestCreateTeamValidation(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)

	_, err := fx.formation.Create(owner.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	long := make([]byte, models.MaxTeamNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = fx.formation.Create(owner.ID, string(long))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// The cap counts runes, not bytes. 30 multibyte runes fit even
	// though they encode to more than 50 bytes.
	created, err := fx.formation.Create(owner.ID, strings.Repeat("ü", 30))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ü", 30), created.Name)
	require.NoError(t, fx.formation.Leave(owner.ID))

	_, err = fx.formation.Create(owner.ID, strings.Repeat("ü", models.MaxTeamNameLength+1))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateTeamWhileOnTeam(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)
	_, err := fx.formation.Create(owner.ID, "First")
	require.NoError(t, err)

	_, err = fx.formation.Create(owner.ID, "Second")
	assert.ErrorIs(t, err, apperr.ErrStateConflict)
}

func TestLastLeaverDeletesTeam(t *testing.T) {
	fx := newFixture(t)
	_, _, teamID, _ := fx.invitedMember(t, "owner@example.com", "invitee@example.com")

	var owner models.Applicant
	require.NoError(t, fx.db.First(&owner, "email = ?", "owner@example.com").Error)
	require.NoError(t, fx.formation.Leave(owner.ID))

	var teams, invitations int64
	require.NoError(t, fx.db.Model(&models.Team{}).Where("id = ?", teamID).Count(&teams).Error)
	require.NoError(t, fx.db.Model(&models.Invitation{}).Where("team_id = ?", teamID).Count(&invitations).Error)
	assert.Equal(t, int64(0), teams)
	assert.Equal(t, int64(0), invitations)
}

func TestLeaveKeepsTeamForOthers(t *testing.T) {
	fx := newFixture(t)
	_, invitee, teamID, token := fx.invitedMember(t, "owner@example.com", "invitee@example.com")
	require.NoError(t, fx.formation.Accept(token, teamID))

	require.NoError(t, fx.formation.Leave(invitee.ID))

	size, err := fx.formation.Size(teamID)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestInviteRequiresTeam(t *testing.T) {
	fx := newFixture(t)
	loner := fx.addApplicant(t, "loner@example.com", models.StatusApplied)
	fx.addApplicant(t, "other@example.com", models.StatusApplied)

	err := fx.formation.Invite(loner.ID, "other@example.com")
	assert.ErrorIs(t, err, apperr.ErrStateConflict)
}

func TestInviteUnknownEmail(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)
	_, err := fx.formation.Create(owner.ID, "Ducks")
	require.NoError(t, err)

	err = fx.formation.Invite(owner.ID, "ghost@example.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInviteSelf(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)
	_, err := fx.formation.Create(owner.ID, "Ducks")
	require.NoError(t, err)

	err = fx.formation.Invite(owner.ID, "owner@example.com")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestInviteNonHacker(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)
	sponsor := &models.Applicant{Email: "sponsor@example.com", Role: models.RoleSponsor, Status: models.StatusCreated}
	require.NoError(t, fx.db.Create(sponsor).Error)
	_, err := fx.formation.Create(owner.ID, "Ducks")
	require.NoError(t, err)

	err = fx.formation.Invite(owner.ID, sponsor.Email)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestInviteFailingMailSurfaces(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)
	fx.addApplicant(t, "invitee@example.com", models.StatusApplied)
	_, err := fx.formation.Create(owner.ID, "Ducks")
	require.NoError(t, err)

	fx.notifier.fail = true
	err = fx.formation.Invite(owner.ID, "invitee@example.com")
	assert.Error(t, err)
}

func TestAcceptJoinsTeam(t *testing.T) {
	fx := newFixture(t)
	_, invitee, teamID, token := fx.invitedMember(t, "owner@example.com", "invitee@example.com")

	require.NoError(t, fx.formation.Accept(token, teamID))

	size, err := fx.formation.Size(teamID)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	var updated models.Applicant
	require.NoError(t, fx.db.First(&updated, "id = ?", invitee.ID).Error)
	require.NotNil(t, updated.TeamID)
	assert.Equal(t, teamID, *updated.TeamID)

	var invitation models.Invitation
	require.NoError(t, fx.db.First(&invitation, "applicant_id = ?", invitee.ID).Error)
	assert.Equal(t, models.InvitationAccepted, invitation.Status)
}

func TestAcceptTokenIsSingleUse(t *testing.T) {
	fx := newFixture(t)
	_, _, teamID, token := fx.invitedMember(t, "owner@example.com", "invitee@example.com")

	require.NoError(t, fx.formation.Accept(token, teamID))
	err := fx.formation.Accept(token, teamID)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestAcceptFullTeamPreservesToken(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)
	created, err := fx.formation.Create(owner.ID, "Ducks")
	require.NoError(t, err)

	for i := 0; i < models.MaxTeamSize-1; i++ {
		member := fx.addApplicant(t, fmt.Sprintf("m%d@example.com", i), models.StatusApplied)
		require.NoError(t, fx.formation.Invite(owner.ID, member.Email))
		require.NoError(t, fx.formation.Accept(fx.inviteToken(t, member.ID), created.ID))
	}

	// A fifth invite is refused while the team is full.
	late := fx.addApplicant(t, "late@example.com", models.StatusApplied)
	err = fx.formation.Invite(owner.ID, late.Email)
	assert.ErrorIs(t, err, apperr.ErrStateConflict)

	// An invitation issued before the team filled also cannot join,
	// and since the whole accept rolls back the token survives for a
	// retry after someone leaves.
	var m0 models.Applicant
	require.NoError(t, fx.db.First(&m0, "email = ?", "m0@example.com").Error)
	pending := fx.addApplicant(t, "pending@example.com", models.StatusApplied)
	require.NoError(t, fx.formation.Leave(m0.ID))
	require.NoError(t, fx.formation.Invite(owner.ID, pending.Email))
	token := fx.inviteToken(t, pending.ID)

	blocker := fx.addApplicant(t, "blocker@example.com", models.StatusApplied)
	require.NoError(t, fx.formation.Invite(owner.ID, blocker.Email))
	require.NoError(t, fx.formation.Accept(fx.inviteToken(t, blocker.ID), created.ID))

	err = fx.formation.Accept(token, created.ID)
	assert.ErrorIs(t, err, apperr.ErrStateConflict)

	require.NoError(t, fx.formation.Leave(blocker.ID))
	assert.NoError(t, fx.formation.Accept(token, created.ID))
}

func TestAcceptRequiresEligibleStatus(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)
	created, err := fx.formation.Create(owner.ID, "Ducks")
	require.NoError(t, err)

	// VERIFIED applicants have not finished an application and cannot
	// join yet.
	invitee := fx.addApplicant(t, "verified@example.com", models.StatusVerified)
	require.NoError(t, fx.formation.Invite(owner.ID, invitee.Email))

	err = fx.formation.Accept(fx.inviteToken(t, invitee.ID), created.ID)
	assert.ErrorIs(t, err, apperr.ErrStateConflict)
}

func TestRejectLeavesMembership(t *testing.T) {
	fx := newFixture(t)
	_, invitee, teamID, token := fx.invitedMember(t, "owner@example.com", "invitee@example.com")

	require.NoError(t, fx.formation.Reject(token, teamID))

	size, err := fx.formation.Size(teamID)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	var invitation models.Invitation
	require.NoError(t, fx.db.First(&invitation, "applicant_id = ?", invitee.ID).Error)
	assert.Equal(t, models.InvitationRejected, invitation.Status)
}

func TestPruneDropsRejectedMembers(t *testing.T) {
	fx := newFixture(t)
	_, invitee, teamID, token := fx.invitedMember(t, "owner@example.com", "invitee@example.com")
	require.NoError(t, fx.formation.Accept(token, teamID))

	require.NoError(t, fx.db.Model(&models.Applicant{}).Where("id = ?", invitee.ID).
		Update("status", models.StatusRejected).Error)

	size, err := fx.formation.Size(teamID)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	var pruned models.Applicant
	require.NoError(t, fx.db.First(&pruned, "id = ?", invitee.ID).Error)
	assert.Nil(t, pruned.TeamID)
}

func TestPruneEmptyingTeamDeletesIt(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)
	created, err := fx.formation.Create(owner.ID, "Ducks")
	require.NoError(t, err)

	require.NoError(t, fx.db.Model(&models.Applicant{}).Where("id = ?", owner.ID).
		Update("status", models.StatusDeclined).Error)

	view, err := fx.formation.Get(owner.ID)
	require.NoError(t, err)
	assert.Nil(t, view)

	var teams int64
	require.NoError(t, fx.db.Model(&models.Team{}).Where("id = ?", created.ID).Count(&teams).Error)
	assert.Equal(t, int64(0), teams)
}

func TestTeammatesPrefersPendingDecision(t *testing.T) {
	fx := newFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusApplied)
	created, err := fx.formation.Create(owner.ID, "Ducks")
	require.NoError(t, err)

	require.NoError(t, fx.db.Create(&models.Decision{
		ApplicantID: owner.ID,
		Outcome:     models.StatusAccepted,
	}).Error)

	teammates, err := fx.formation.Teammates(created.ID)
	require.NoError(t, err)
	require.Len(t, teammates, 1)
	assert.Equal(t, models.StatusAccepted, teammates[0].Status)
}

// newPostgresFixture connects to the database named by TEST_POSTGRES_DSN.
// SQLite serializes writers, so races between concurrent transactions
// only manifest on Postgres; without the env the test skips.
func newPostgresFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	for _, model := range []any{
		&models.Invitation{}, &models.Token{}, &models.Decision{},
		&models.Applicant{}, &models.Team{},
	} {
		require.NoError(t, db.Unscoped().Where("1 = 1").Delete(model).Error)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	notifier := &fakeNotifier{}
	formation := NewFormation(db, tokens.NewStore(db), notifier, log, "http://localhost:5000")
	return &fixture{formation: formation, db: db, notifier: notifier}
}

func TestAcceptRaceForLastSlot(t *testing.T) {
	fx := newPostgresFixture(t)
	owner := fx.addApplicant(t, "owner@example.com", models.StatusConfirmed)
	created, err := fx.formation.Create(owner.ID, "Full House")
	require.NoError(t, err)
	for i := 0; i < models.MaxTeamSize-2; i++ {
		member := fx.addApplicant(t, fmt.Sprintf("member%d@example.com", i), models.StatusAccepted)
		require.NoError(t, fx.db.Model(&models.Applicant{}).Where("id = ?", member.ID).
			Update("team_id", created.ID).Error)
	}

	first := fx.addApplicant(t, "first@example.com", models.StatusApplied)
	second := fx.addApplicant(t, "second@example.com", models.StatusApplied)
	require.NoError(t, fx.formation.Invite(owner.ID, first.Email))
	require.NoError(t, fx.formation.Invite(owner.ID, second.Email))
	inviteTokens := []string{fx.inviteToken(t, first.ID), fx.inviteToken(t, second.ID)}

	// Both accepts race for the single remaining slot.
	start := make(chan struct{})
	results := make(chan error, len(inviteTokens))
	for _, tok := range inviteTokens {
		go func(tok string) {
			<-start
			results <- fx.formation.Accept(tok, created.ID)
		}(tok)
	}
	close(start)

	var joined, conflicted int
	for range inviteTokens {
		switch err := <-results; {
		case err == nil:
			joined++
		case errors.Is(err, apperr.ErrStateConflict):
			conflicted++
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	assert.Equal(t, 1, joined)
	assert.Equal(t, 1, conflicted)

	size, err := fx.formation.Size(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaxTeamSize, size)
}
