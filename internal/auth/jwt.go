package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	deviceTokenExpiry   = 7 * 24 * time.Hour // device tokens
	operatorTokenExpiry = 24 * time.Hour     // operator dashboard tokens
)

// Roles carried in gateway tokens.
const (
	RoleDevice   = "device"
	RoleOperator = "operator"
)

// Claims represents the JWT token claims for devices and operators
type Claims struct {
	DeviceID  uuid.UUID `json:"device_id,omitempty"`
	CompanyID uuid.UUID `json:"company_id,omitempty"`
	Role      string    `json:"role"`
	jwt.RegisteredClaims
}

// JWTService handles JWT token operations
type JWTService struct {
	secret []byte
}

// NewJWTService creates a new JWT service
func NewJWTService(secret string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
	}
}

// SignDeviceToken creates a token a device presents when opening its
// gateway connection (7-day expiry).
func (s *JWTService) SignDeviceToken(deviceID, companyID uuid.UUID) (string, error) {
	now := time.Now()
	claims := &Claims{
		DeviceID:  deviceID,
		CompanyID: companyID,
		Role:      RoleDevice,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(deviceTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign device token: %w", err)
	}
	return tokenString, nil
}

// SignOperatorToken creates a token for an operator dashboard session (24h expiry).
func (s *JWTService) SignOperatorToken(operatorID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(operatorTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign operator token: %w", err)
	}
	return tokenString, nil
}

// VerifyToken verifies and parses a JWT token
func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
