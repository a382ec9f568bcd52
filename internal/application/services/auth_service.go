package services

import (
	"context"
	"log"
	"time"

	"github.com/pulsecrm/syncd/internal/domain/models"
	"github.com/pulsecrm/syncd/internal/infrastructure/database"
	"github.com/pulsecrm/syncd/internal/infrastructure/persistence"
	"github.com/pulsecrm/syncd/pkg/auth"
	"github.com/pulsecrm/syncd/pkg/errors"
	"github.com/pulsecrm/syncd/pkg/utils"
)

// AuthService handles device registration and token issuance
type AuthService struct {
	db   *database.Connection
	repo *persistence.DeviceRepository
}

// NewAuthService creates a new AuthService
func NewAuthService(db *database.Connection) *AuthService {
	return &AuthService{
		db:   db,
		repo: persistence.NewDeviceRepository(db.DB()),
	}
}

// LoginResult contains the result of a successful device login
type LoginResult struct {
	Token     string             `json:"token"`
	Device    auth.DeviceSession `json:"device"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Register creates a device record. The secret is stored bcrypt-hashed and
// never returned.
func (s *AuthService) Register(ctx context.Context, name, platform, secret string) (*models.Device, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "device name is required")
	}
	if len(secret) < 8 {
		return nil, errors.NewValidationError("secret", "device secret must be at least 8 characters")
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		return nil, err
	}

	device := &models.Device{
		ID:         utils.GenerateID(),
		Name:       name,
		Platform:   platform,
		SecretHash: hash,
	}

	if err := s.repo.Create(ctx, device); err != nil {
		return nil, err
	}
	device.CreatedDate = time.Now()

	log.Printf("📱 Registered device %s (%s/%s)", device.ID, name, platform)
	return device, nil
}

// Login authenticates a device and issues a JWT
func (s *AuthService) Login(ctx context.Context, deviceID, secret string) (*LoginResult, error) {
	device, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		log.Printf("⚠️ Login failed for device %s: not found", deviceID)
		return nil, errors.NewUnauthorizedError("Invalid device id or secret")
	}

	if !auth.VerifySecret(secret, device.SecretHash) {
		log.Printf("⚠️ Login failed for device %s: invalid secret", deviceID)
		return nil, errors.NewUnauthorizedError("Invalid device id or secret")
	}

	session := auth.DeviceSession{
		ID:       device.ID,
		Name:     device.Name,
		Platform: device.Platform,
	}

	token, err := auth.GenerateToken(session)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		Device:    session,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}, nil
}

// ValidateSession validates a bearer token and returns its claims
func (s *AuthService) ValidateSession(ctx context.Context, tokenString string) (*auth.Claims, error) {
	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		return nil, errors.NewUnauthorizedError("Invalid or expired token")
	}
	return claims, nil
}

// TouchDevice updates the device's last activity timestamp (fire and forget)
func (s *AuthService) TouchDevice(deviceID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.TouchLastSeen(ctx, deviceID); err != nil {
			log.Printf("⚠️ Failed to touch device %s: %v", deviceID, err)
		}
	}()
}
