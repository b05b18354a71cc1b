package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hackreg/models"
)

type Claims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWT signs and parses session tokens with an injected secret, so tests
// never depend on process environment.
type JWT struct {
	Secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{Secret: []byte(secret)}
}

// Generate returns an access token (15 minutes) and a refresh token
// (7 days) for the applicant.
func (j *JWT) Generate(applicant *models.Applicant) (string, string, error) {
	accessClaims := &Claims{
		UserID: applicant.ID,
		Role:   applicant.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(j.Secret)
	if err != nil {
		return "", "", err
	}

	refreshClaims := &Claims{
		UserID: applicant.ID,
		Role:   applicant.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(j.Secret)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (j *JWT) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Refresh exchanges a valid refresh token for a fresh token pair.
func (j *JWT) Refresh(refreshToken string, lookup func(id string) (*models.Applicant, error)) (string, string, error) {
	claims, err := j.Parse(refreshToken)
	if err != nil {
		return "", "", err
	}
	if time.Until(claims.ExpiresAt.Time) <= 0 {
		return "", "", errors.New("refresh token expired")
	}
	applicant, err := lookup(claims.UserID)
	if err != nil {
		return "", "", err
	}
	return j.Generate(applicant)
}
