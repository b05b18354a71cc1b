package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"hackreg/admission"
	"hackreg/models"
	"hackreg/utils"
)

type AdmissionController struct {
	Engine *admission.Engine
	Logger *logrus.Logger
}

func NewAdmissionController(engine *admission.Engine, logger *logrus.Logger) *AdmissionController {
	return &AdmissionController{Engine: engine, Logger: logger}
}

type DecideRequest struct {
	Outcome models.Status `json:"outcome" validate:"required"`
	IDs     []string      `json:"ids" validate:"required,min=1"`
}

type IDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

type SetStatusRequest struct {
	Status models.Status `json:"status" validate:"required"`
	IDs    []string      `json:"ids" validate:"required,min=1"`
}

type AnswersRequest struct {
	Answers models.AnswerMap `json:"answers"`
}

// Decide stages a pending outcome for each applicant. Nothing is
// visible to applicants until release.
func (adc *AdmissionController) Decide(c *fiber.Ctx) error {
	var req DecideRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	if err := adc.Engine.Decide(req.Outcome, req.IDs); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

func (adc *AdmissionController) GetDecisions(c *fiber.Ctx) error {
	ledger, err := adc.Engine.GetDecisions()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(ledger))
}

func (adc *AdmissionController) RemoveDecisions(c *fiber.Ctx) error {
	var req IDsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	if err := adc.Engine.RemoveDecisions(req.IDs); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

func (adc *AdmissionController) Release(c *fiber.Ctx) error {
	var req IDsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	if err := adc.Engine.ReleaseDecisions(req.IDs); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

func (adc *AdmissionController) ReleaseAll(c *fiber.Ctx) error {
	if err := adc.Engine.ReleaseAll(); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

// NextCandidate hands the reviewer the next undecided application,
// teammates grouped together, with its blacklist screen result.
func (adc *AdmissionController) NextCandidate(c *fiber.Ctx) error {
	role := models.Role(c.Query("role", string(models.RoleHacker)))
	candidate, err := adc.Engine.GetAppliedUser(role)
	if err != nil {
		return respondError(c, err)
	}
	if candidate == nil {
		return c.JSON(utils.SuccessResponse(nil))
	}
	return c.JSON(utils.SuccessResponse(candidate))
}

func (adc *AdmissionController) Screen(c *fiber.Ctx) error {
	hit, err := adc.Engine.Screen(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"blacklisted": hit}))
}

// SetStatuses force-writes statuses, bypassing the state machine.
// Admin escape hatch.
func (adc *AdmissionController) SetStatuses(c *fiber.Ctx) error {
	var req SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	if err := adc.Engine.SetStatuses(req.Status, req.IDs); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

// CanApply tells the frontend whether the application window is open.
func (adc *AdmissionController) CanApply(c *fiber.Ctx) error {
	open, err := adc.Engine.CanApply()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"open": open}))
}

// UpdateApplication saves draft answers. An already submitted
// application drops back to draft and loses any pending decision.
func (adc *AdmissionController) UpdateApplication(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)

	var req AnswersRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	problems, err := adc.Engine.UpdateApplication(applicant.ID, req.Answers)
	if err != nil {
		return respondError(c, err)
	}
	// The draft saved either way; problems tell the UI what still
	// needs fixing before submission.
	return c.JSON(utils.SuccessResponse(fiber.Map{"problems": problems}))
}

func (adc *AdmissionController) SubmitApplication(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)

	problems, err := adc.Engine.SubmitApplication(applicant.ID)
	if err != nil {
		return respondError(c, err)
	}
	if len(problems) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":    "Some answers failed validation",
			"problems": problems,
		})
	}
	return c.JSON(utils.SuccessResponse(nil))
}

func (adc *AdmissionController) WithdrawApplication(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)
	if err := adc.Engine.WithdrawApplication(applicant.ID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

func (adc *AdmissionController) Confirm(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)
	if err := adc.Engine.Confirm(applicant.ID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

func (adc *AdmissionController) Decline(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)
	if err := adc.Engine.Decline(applicant.ID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}
