package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"hackreg/models"
	"hackreg/questions"
	"hackreg/utils"
)

type QuestionsController struct {
	Service *questions.Service
	Logger  *logrus.Logger
}

func NewQuestionsController(service *questions.Service, logger *logrus.Logger) *QuestionsController {
	return &QuestionsController{Service: service, Logger: logger}
}

type MoveQuestionRequest struct {
	Position int `json:"position"`
}

// List is public: applicants need the schema to render the form.
func (qc *QuestionsController) List(c *fiber.Ctx) error {
	schema, err := qc.Service.List()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(schema))
}

func (qc *QuestionsController) Create(c *fiber.Ctx) error {
	var q models.Question
	if err := c.BodyParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	created, err := qc.Service.Create(q)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(created))
}

func (qc *QuestionsController) Update(c *fiber.Ctx) error {
	var q models.Question
	if err := c.BodyParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	updated, err := qc.Service.Update(c.Params("id"), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(updated))
}

func (qc *QuestionsController) Delete(c *fiber.Ctx) error {
	if err := qc.Service.Delete(c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}

func (qc *QuestionsController) Move(c *fiber.Ctx) error {
	var req MoveQuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := qc.Service.Move(c.Params("id"), req.Position); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}
