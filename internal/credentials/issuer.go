package credentials

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/screenfleet/server/internal/auth"
)

const certValidity = 365 * 24 * time.Hour

// Credentials is the bundle handed to a device exactly once at registration.
// The private key is never persisted by the gateway.
type Credentials struct {
	Certificate  string `json:"certificate"`
	PrivateKey   string `json:"private_key"`
	Token        string `json:"jwt"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Issuer mints credentials for a newly registered device. The production
// deployment points this at the platform's credential service.
type Issuer interface {
	Issue(ctx context.Context, deviceID, companyID uuid.UUID, companyName string) (Credentials, error)
}

// LocalIssuer issues self-signed certificates and gateway-signed JWTs.
type LocalIssuer struct {
	jwtService *auth.JWTService
}

// NewLocalIssuer creates a local credential issuer
func NewLocalIssuer(jwtService *auth.JWTService) *LocalIssuer {
	return &LocalIssuer{jwtService: jwtService}
}

// Issue generates a fresh keypair, a self-signed device certificate, a device
// JWT, and a refresh token.
func (i *LocalIssuer) Issue(ctx context.Context, deviceID, companyID uuid.UUID, companyName string) (Credentials, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Credentials{}, fmt.Errorf("generate device key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return Credentials{}, fmt.Errorf("generate certificate serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   deviceID.String(),
			Organization: []string{companyName},
		},
		NotBefore:             now,
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return Credentials{}, fmt.Errorf("create device certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return Credentials{}, fmt.Errorf("marshal device key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	token, err := i.jwtService.SignDeviceToken(deviceID, companyID)
	if err != nil {
		return Credentials{}, fmt.Errorf("sign device token: %w", err)
	}

	refreshToken, _, err := auth.GenerateRefreshToken()
	if err != nil {
		return Credentials{}, fmt.Errorf("generate refresh token: %w", err)
	}

	return Credentials{
		Certificate:  string(certPEM),
		PrivateKey:   string(keyPEM),
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(certValidity.Seconds()),
	}, nil
}
