package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"hackreg/admission"
	"hackreg/blacklist"
	"hackreg/config"
	controller "hackreg/controllers"
	"hackreg/middleware"
	"hackreg/models"
	"hackreg/questions"
	"hackreg/team"
	"hackreg/tokens"
	"hackreg/utils"
)

// Deps bundles everything the route tree needs. Built once in main,
// and by tests against an in-memory database.
type Deps struct {
	DB        *gorm.DB
	Config    *config.Config
	JWT       *utils.JWT
	Tokens    *tokens.Store
	Blacklist *blacklist.Store
	Questions *questions.Service
	Engine    *admission.Engine
	Formation *team.Formation
	Logger    *logrus.Logger
}

// Setup wires every endpoint onto app.
func Setup(app *fiber.App, d *Deps) {
	requestLog := logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})

	authed := middleware.Protected(d.JWT, d.DB)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	reviewerOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleOrganizer)

	accountController := controller.NewAccountController(
		d.DB, d.JWT, d.Tokens, d.Engine, d.Engine.Notifier, d.Logger, d.Config)
	admissionController := controller.NewAdmissionController(d.Engine, d.Logger)
	teamController := controller.NewTeamController(d.Formation, d.Logger)
	blacklistController := controller.NewBlacklistController(d.Blacklist, d.Logger)
	questionsController := controller.NewQuestionsController(d.Questions, d.Logger)
	settingsController := controller.NewSettingsController(d.DB, d.Logger)

	// Account and session endpoints. Credential endpoints are rate
	// limited per IP.
	account := app.Group("/account", requestLog)
	credLimiter := middleware.AuthRateLimiter(d.Config, 10, d.Logger)
	account.Post("/register", credLimiter, accountController.Register)
	account.Post("/login", credLimiter, accountController.Login)
	account.Post("/refresh", accountController.Refresh)
	account.Get("/verify", accountController.VerifyEmail)
	account.Post("/forgot-password", credLimiter, accountController.ForgotPassword)
	account.Post("/reset-password", accountController.ResetPassword)
	account.Get("/me", authed, accountController.Me)
	account.Post("/resend-verification", authed, accountController.ResendVerification)

	if accountController.GitHubEnabled() {
		account.Get("/github", accountController.GitHubLogin)
		account.Get("/github/callback", accountController.GitHubCallback)
	}

	// Applicant-facing application lifecycle.
	application := app.Group("/application", requestLog, authed)
	application.Get("/can-apply", admissionController.CanApply)
	application.Put("/", admissionController.UpdateApplication)
	application.Post("/submit", admissionController.SubmitApplication)
	application.Post("/withdraw", admissionController.WithdrawApplication)
	application.Post("/confirm", admissionController.Confirm)
	application.Post("/decline", admissionController.Decline)

	// Team formation. Invitation responses carry their own token, so
	// they only need a session, not special roles.
	teams := app.Group("/team", requestLog, authed)
	teams.Post("/", teamController.Create)
	teams.Get("/", teamController.Get)
	teams.Post("/leave", teamController.Leave)
	teams.Post("/invite", credLimiter, teamController.Invite)
	teams.Get("/invitations", teamController.Invitations)
	teams.Post("/respond", teamController.RespondInvitation)

	// Application form schema. Reads are public, writes are admin.
	questionRoutes := app.Group("/questions", requestLog)
	questionRoutes.Get("/", questionsController.List)
	questionRoutes.Post("/", authed, adminOnly, questionsController.Create)
	questionRoutes.Put("/:id", authed, adminOnly, questionsController.Update)
	questionRoutes.Delete("/:id", authed, adminOnly, questionsController.Delete)
	questionRoutes.Post("/:id/move", authed, adminOnly, questionsController.Move)

	// Review and decision workflow.
	admin := app.Group("/admin", requestLog, authed, reviewerOnly)
	admin.Get("/candidates/next", admissionController.NextCandidate)
	admin.Get("/candidates/:id/screen", admissionController.Screen)
	admin.Post("/decisions", admissionController.Decide)
	admin.Get("/decisions", admissionController.GetDecisions)
	admin.Delete("/decisions", admissionController.RemoveDecisions)
	admin.Post("/decisions/release", admissionController.Release)
	admin.Post("/decisions/release-all", admissionController.ReleaseAll)
	admin.Get("/teams/:id/members", teamController.Teammates)

	// Destructive or global knobs stay admin-only.
	adminStrict := app.Group("/admin", requestLog, authed, adminOnly)
	adminStrict.Post("/statuses", admissionController.SetStatuses)
	adminStrict.Get("/blacklist", blacklistController.Get)
	adminStrict.Put("/blacklist", blacklistController.Replace)
	adminStrict.Post("/blacklist", blacklistController.Add)
	adminStrict.Delete("/blacklist", blacklistController.Remove)
	adminStrict.Get("/settings", settingsController.Get)
	adminStrict.Put("/settings", settingsController.Update)

	d.Logger.Info("Routes initialized successfully")
}
