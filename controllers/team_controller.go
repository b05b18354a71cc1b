package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"hackreg/models"
	"hackreg/team"
	"hackreg/utils"
)

type TeamController struct {
	Formation *team.Formation
	Logger    *logrus.Logger
}

func NewTeamController(formation *team.Formation, logger *logrus.Logger) *TeamController {
	return &TeamController{Formation: formation, Logger: logger}
}

type CreateTeamRequest struct {
	Name string `json:"name" validate:"required,max=50"`
}

type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type RespondInvitationRequest struct {
	Token  string `json:"token" validate:"required"`
	TeamID uint   `json:"team_id" validate:"required"`
	Accept bool   `json:"accept"`
}

func (tc *TeamController) Create(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)

	var req CreateTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	created, err := tc.Formation.Create(applicant.ID, req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(created))
}

func (tc *TeamController) Get(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)
	view, err := tc.Formation.Get(applicant.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(view))
}

func (tc *TeamController) Leave(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)
	if err := tc.Formation.Leave(applicant.ID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

func (tc *TeamController) Invite(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)

	var req InviteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	if err := tc.Formation.Invite(applicant.ID, req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

func (tc *TeamController) Invitations(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)
	invitations, err := tc.Formation.Invitations(applicant.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(invitations))
}

// RespondInvitation accepts or rejects via the emailed token. Accepting
// retries once on transient store contention; the token consumption
// rolls back with the failed attempt, so the retry revalidates cleanly.
func (tc *TeamController) RespondInvitation(c *fiber.Ctx) error {
	var req RespondInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	var err error
	if req.Accept {
		err = retryTransient(func() error {
			return tc.Formation.Accept(req.Token, req.TeamID)
		})
	} else {
		err = tc.Formation.Reject(req.Token, req.TeamID)
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

// Teammates is the admin view of a team's members and their effective
// statuses.
func (tc *TeamController) Teammates(c *fiber.Ctx) error {
	teamID := utils.ParseUint(c.Params("id"))
	if teamID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid team id",
		})
	}
	teammates, err := tc.Formation.Teammates(teamID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(teammates))
}
