package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"hackreg/blacklist"
	"hackreg/models"
	"hackreg/utils"
)

type BlacklistController struct {
	Store  *blacklist.Store
	Logger *logrus.Logger
}

func NewBlacklistController(store *blacklist.Store, logger *logrus.Logger) *BlacklistController {
	return &BlacklistController{Store: store, Logger: logger}
}

type ReplaceBlacklistRequest struct {
	Emails []string `json:"emails"`
	Names  []string `json:"names"`
}

type BlacklistEntryRequest struct {
	Kind  models.BlacklistKind `json:"kind" validate:"required,oneof=email name"`
	Value string               `json:"value" validate:"required"`
}

func (bc *BlacklistController) Get(c *fiber.Ctx) error {
	lists, err := bc.Store.Lists()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(lists))
}

// Replace swaps in the full lists, keeping entries that are present in
// both the old and new versions.
func (bc *BlacklistController) Replace(c *fiber.Ctx) error {
	var req ReplaceBlacklistRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	lists, err := bc.Store.Replace(req.Emails, req.Names)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(lists))
}

func (bc *BlacklistController) Add(c *fiber.Ctx) error {
	var req BlacklistEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	added, err := bc.Store.Add(req.Kind, req.Value)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"added": added}))
}

func (bc *BlacklistController) Remove(c *fiber.Ctx) error {
	var req BlacklistEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}
	if err := bc.Store.Remove(req.Kind, req.Value); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(nil))
}
