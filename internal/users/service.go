package users

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	operationCreateUser = "users.create"
	operationGetUser    = "users.get"
	maxDisplayNameSize  = 320
)

var (
	// ErrInvalidDisplayName indicates an empty or oversized display name.
	ErrInvalidDisplayName = errors.New("users: display name is required")

	errMissingDatabase = errors.New("database handle is required")
	errMissingIDs      = errors.New("id provider is required")
)

// ServiceConfig wires dependencies for the user service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service creates and loads user accounts.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerror.New("users.new_service", "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerror.New("users.new_service", "missing_id_provider", errMissingIDs)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CreateUser registers an account starting at the reputation floor.
func (s *Service) CreateUser(ctx context.Context, displayName, email string) (User, error) {
	displayName = normalize(displayName)
	if displayName == "" || len(displayName) > maxDisplayNameSize {
		return User{}, ErrInvalidDisplayName
	}
	userID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operationCreateUser, "id_generation_failed", err)
		return User{}, serviceerror.New(operationCreateUser, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	user := User{
		ID:          userID,
		DisplayName: displayName,
		Email:       normalize(email),
		Reputation:  InitialReputation,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		s.logError(operationCreateUser, "insert_failed", err, zap.String("user_id", userID))
		return User{}, serviceerror.New(operationCreateUser, "insert_failed", err)
	}
	return user, nil
}

// Get loads one account.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	user, err := NewDirectory(s.db).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		s.logError(operationGetUser, "query_failed", err, zap.String("user_id", userID))
		return User{}, serviceerror.New(operationGetUser, "query_failed", err)
	}
	return user, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("user service error", attrs...)
}
