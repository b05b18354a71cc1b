package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"gorm.io/gorm"

	"hackreg/admission"
	"hackreg/config"
	"hackreg/models"
	"hackreg/tokens"
	"hackreg/utils"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type AuthResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	User         *models.Applicant `json:"user"`
}

type AccountController struct {
	DB       *gorm.DB
	JWT      *utils.JWT
	Tokens   *tokens.Store
	Engine   *admission.Engine
	Notifier admission.Notifier
	Logger   *logrus.Logger
	BaseURL  string

	githubOAuth *oauth2.Config
}

func NewAccountController(db *gorm.DB, jwt *utils.JWT, tokenStore *tokens.Store,
	engine *admission.Engine, notifier admission.Notifier, logger *logrus.Logger,
	cfg *config.Config) *AccountController {

	ac := &AccountController{
		DB:       db,
		JWT:      jwt,
		Tokens:   tokenStore,
		Engine:   engine,
		Notifier: notifier,
		Logger:   logger,
		BaseURL:  cfg.BaseURL,
	}
	if cfg.GitHub.Enabled() {
		ac.githubOAuth = &oauth2.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.GitHub.RedirectURI,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}
	}
	return ac
}

// GitHubEnabled reports whether OAuth routes should be registered.
func (ac *AccountController) GitHubEnabled() bool {
	return ac.githubOAuth != nil
}

func (ac *AccountController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	var existing models.Applicant
	if err := ac.DB.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Email already registered",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to hash password",
		})
	}

	applicant := models.Applicant{
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		Role:         models.RoleHacker,
		Status:       models.StatusCreated,
	}
	if err := ac.DB.Create(&applicant).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	if err := ac.sendVerificationEmail(&applicant); err != nil {
		ac.Logger.WithError(err).Warn("verification email not sent")
	}

	accessToken, refreshToken, err := ac.JWT.Generate(&applicant)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate tokens",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         &applicant,
	})
}

func (ac *AccountController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	var applicant models.Applicant
	if err := ac.DB.Where("email = ?", req.Email).First(&applicant).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(applicant.PasswordHash), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	accessToken, refreshToken, err := ac.JWT.Generate(&applicant)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate tokens",
		})
	}
	return c.JSON(AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         &applicant,
	})
}

func (ac *AccountController) Refresh(c *fiber.Ctx) error {
	var req RefreshTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	accessToken, refreshToken, err := ac.JWT.Refresh(req.RefreshToken, func(id string) (*models.Applicant, error) {
		var applicant models.Applicant
		if err := ac.DB.First(&applicant, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &applicant, nil
	})
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired refresh token",
		})
	}
	return c.JSON(fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

func (ac *AccountController) Me(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)
	return c.JSON(applicant)
}

// VerifyEmail consumes the verification token from the registration
// email and promotes the account to VERIFIED.
func (ac *AccountController) VerifyEmail(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Verification token is required",
		})
	}
	applicant, err := ac.Engine.VerifyEmail(token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.SuccessResponse(applicant))
}

// ResendVerification issues a fresh verification token, invalidating
// any outstanding one.
func (ac *AccountController) ResendVerification(c *fiber.Ctx) error {
	applicant := c.Locals("user").(*models.Applicant)
	if applicant.Status != models.StatusCreated {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Email is already verified",
		})
	}
	if err := ac.sendVerificationEmail(applicant); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to send verification email",
		})
	}
	return c.JSON(utils.SuccessResponse(nil))
}

// ForgotPassword always answers 200 so the endpoint cannot be used to
// probe which emails hold accounts.
func (ac *AccountController) ForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	var applicant models.Applicant
	if err := ac.DB.Where("email = ?", req.Email).First(&applicant).Error; err == nil {
		token, err := ac.Tokens.Issue(applicant.ID, tokens.PurposePasswordReset, tokens.PasswordResetTTL)
		if err == nil {
			link := fmt.Sprintf("%s/account/reset-password?token=%s", ac.BaseURL, token)
			body := fmt.Sprintf(`We received a request to reset your password.
This link will expire in 10 minutes.
<a href="%s">Reset Password</a>`, link)
			if err := ac.Notifier.Send(applicant.Email, "Password Reset Request", body); err != nil {
				ac.Logger.WithError(err).Warn("password reset email not sent")
			}
		}
	}

	return c.JSON(fiber.Map{
		"message": "If that email has an account, a reset link is on its way",
	})
}

func (ac *AccountController) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err)
	}

	subjectID, err := ac.Tokens.Validate(req.Token, tokens.PurposePasswordReset)
	if err != nil {
		return respondError(c, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to hash password",
		})
	}
	if err := ac.DB.Model(&models.Applicant{}).Where("id = ?", subjectID).
		Update("password_hash", string(hashedPassword)).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update password",
		})
	}
	return c.JSON(utils.SuccessResponse(nil))
}

// GitHubLogin starts the OAuth flow.
func (ac *AccountController) GitHubLogin(c *fiber.Ctx) error {
	// Each flow gets its own subject so concurrent logins do not
	// invalidate each other's state token.
	state, err := ac.Tokens.Issue(uuid.NewString(), tokens.PurposeOAuthState, 10*time.Minute)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start OAuth flow",
		})
	}
	return c.Redirect(ac.githubOAuth.AuthCodeURL(state), fiber.StatusTemporaryRedirect)
}

// GitHubCallback exchanges the code, then signs the matching account in
// or creates one. GitHub accounts start VERIFIED since GitHub already
// vouched for the email.
func (ac *AccountController) GitHubCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	if _, err := ac.Tokens.Validate(state, tokens.PurposeOAuthState); err != nil {
		return respondError(c, err)
	}

	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing authorization code",
		})
	}

	ctx := context.Background()
	oauthToken, err := ac.githubOAuth.Exchange(ctx, code)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "OAuth exchange failed",
		})
	}

	ghUser, err := fetchGitHubUser(ctx, ac.githubOAuth.Client(ctx, oauthToken))
	if err != nil {
		ac.Logger.WithError(err).Error("failed to fetch GitHub profile")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to fetch GitHub profile",
		})
	}

	var applicant models.Applicant
	err = ac.DB.Where("github_id = ?", ghUser.ID).Or("email = ?", ghUser.Email).
		First(&applicant).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		applicant = models.Applicant{
			Email:          ghUser.Email,
			Role:           models.RoleHacker,
			Status:         models.StatusVerified,
			GithubID:       utils.Pointer(fmt.Sprintf("%d", ghUser.ID)),
			GithubUsername: utils.Pointer(ghUser.Login),
		}
		if err := ac.DB.Create(&applicant).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create account",
			})
		}
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	default:
		updates := map[string]any{
			"github_id":       fmt.Sprintf("%d", ghUser.ID),
			"github_username": ghUser.Login,
		}
		if err := ac.DB.Model(&applicant).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to link GitHub account",
			})
		}
	}

	accessToken, refreshToken, err := ac.JWT.Generate(&applicant)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate tokens",
		})
	}
	return c.JSON(AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         &applicant,
	})
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*githubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user endpoint returned %d", resp.StatusCode)
	}

	var user githubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	if user.Email == "" {
		return nil, fmt.Errorf("github account has no public email")
	}
	return &user, nil
}

func (ac *AccountController) sendVerificationEmail(applicant *models.Applicant) error {
	token, err := ac.Tokens.Issue(applicant.ID, tokens.PurposeEmailVerification, tokens.EmailVerificationTTL)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/account/verify?token=%s", ac.BaseURL, token)
	body := fmt.Sprintf(`Thanks for registering!
Please verify your email address to continue your application.
This link will expire in one week.
<a href="%s">Verify Email</a>`, link)
	return ac.Notifier.Send(applicant.Email, "Verify your email", body)
}
