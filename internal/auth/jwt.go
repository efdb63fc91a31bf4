package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianbank/core/internal/bankerr"
	"github.com/meridianbank/core/internal/models"
)

type tokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Service) signToken(user models.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: sign token: %v", bankerr.ErrInternal, err)
	}
	return token, nil
}

// ParseToken validates a bearer token and returns the actor it identifies.
func (s *Service) ParseToken(tokenString string) (models.Actor, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", bankerr.ErrBadCredentials, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: malformed subject claim", bankerr.ErrBadCredentials)
	}
	return models.Actor{
		UserID:   userID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}
