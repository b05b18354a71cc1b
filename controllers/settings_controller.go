package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"hackreg/models"
	"hackreg/utils"
)

type SettingsController struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewSettingsController(db *gorm.DB, logger *logrus.Logger) *SettingsController {
	return &SettingsController{DB: db, Logger: logger}
}

func (sc *SettingsController) Get(c *fiber.Ctx) error {
	settings, err := models.GetSettings(sc.DB)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(settings))
}

func (sc *SettingsController) Update(c *fiber.Ctx) error {
	var settings models.Settings
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if settings.ApplicationDeadline != nil && settings.ConfirmBy != nil &&
		settings.ConfirmBy.Before(*settings.ApplicationDeadline) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Confirmation deadline must not precede the application deadline",
		})
	}
	if err := models.SaveSettings(sc.DB, &settings); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(settings))
}
