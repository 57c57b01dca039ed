package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Claims struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Neighborhood string `json:"neighborhood"`
	Role         string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the decoded subject of a token.
type Identity struct {
	UserID       primitive.ObjectID
	Name         string
	Neighborhood string
	Role         string
}

type JWTManager struct {
	SecretKey []byte
	Duration  time.Duration
}

func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		SecretKey: []byte(secretKey),
		Duration:  duration,
	}
}

func (j *JWTManager) GenerateToken(id Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:       id.UserID.Hex(),
		Name:         id.Name,
		Neighborhood: id.Neighborhood,
		Role:         id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.Duration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.SecretKey)
}

func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return j.SecretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// Identity converts validated claims into an Identity.
func (c *Claims) Identity() (Identity, error) {
	userID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid user id in token: %w", err)
	}
	if c.Neighborhood == "" {
		return Identity{}, errors.New("token has no neighborhood")
	}
	return Identity{
		UserID:       userID,
		Name:         c.Name,
		Neighborhood: c.Neighborhood,
		Role:         c.Role,
	}, nil
}
