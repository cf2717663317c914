package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/speakerhub/pkg/auth"
	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/events"
	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/pkg/mailer"
	"github.com/diagnosis/speakerhub/services/auth/internal/domain"
	"github.com/diagnosis/speakerhub/services/auth/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

type AuthService interface {
	Signup(ctx context.Context, req *domain.SignupRequest) (*domain.User, error)
	VerifyOTP(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.User, error)
	ResendOTP(ctx context.Context, email string) error
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*domain.LoginResponse, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	otpRepo  repository.OTPRepository
	mailer   mailer.Service
	delivery events.Requester
	config   *config.Config

	otpHashCost     int
	now             func() time.Time
	deliveryTimeout time.Duration
}

func NewAuthService(
	userRepo repository.UserRepository,
	otpRepo repository.OTPRepository,
	mailer mailer.Service,
	delivery events.Requester,
	config *config.Config,
) AuthService {
	deliveryTimeout := config.Auth.OTPDeliveryTimeout
	if deliveryTimeout <= 0 {
		deliveryTimeout = 10 * time.Second
	}
	return &authService{
		userRepo:        userRepo,
		otpRepo:         otpRepo,
		mailer:          mailer,
		delivery:        delivery,
		config:          config,
		otpHashCost:     bcrypt.DefaultCost,
		now:             time.Now,
		deliveryTimeout: deliveryTimeout,
	}
}

func (s *authService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailExists
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, req, passwordHash)
	if err != nil {
		if errors.Is(err, domain.ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.issueOTP(ctx, user, events.UserRegistered); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "User registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

func (s *authService) VerifyOTP(ctx context.Context, req *domain.VerifyOTPRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	otp, err := s.otpRepo.Latest(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load otp: %w", err)
	}
	if otp == nil {
		return nil, domain.ErrInvalidOTP
	}
	if err := bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(req.OTP)); err != nil {
		return nil, domain.ErrInvalidOTP
	}
	if otp.IsExpired(s.now()) {
		return nil, domain.ErrOTPExpired
	}

	if err := s.userRepo.MarkVerified(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to mark user as verified: %w", err)
	}
	user.IsVerified = true

	logger.InfoContext(ctx, "User verified", "user_id", user.ID)
	return user, nil
}

// ResendOTP is silent for unknown addresses so the endpoint cannot be used to probe accounts.
func (s *authService) ResendOTP(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil
	}
	if user.IsVerified {
		return domain.ErrAlreadyVerified
	}
	return s.issueOTP(ctx, user, events.OTPIssued)
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, domain.ErrNotVerified
	}

	accessToken, err := auth.NewAccessToken(user.ID, user.Email, user.Role, s.config.Auth.JWTSecret, s.config.Auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	refreshToken, err := auth.NewRefreshToken(user.ID, user.Email, s.config.Auth.JWTSecret, s.config.Auth.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return &domain.LoginResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.Auth.AccessTokenTTL.Seconds()),
		User:         user.ToUserInfo(),
	}, nil
}

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*domain.LoginResponse, error) {
	claims, err := auth.Parse(refreshToken, s.config.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.UserType != auth.TypeRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", domain.ErrInvalidToken)
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user no longer exists", domain.ErrInvalidToken)
	}

	accessToken, err := auth.NewAccessToken(user.ID, user.Email, user.Role, s.config.Auth.JWTSecret, s.config.Auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	return &domain.LoginResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.Auth.AccessTokenTTL.Seconds()),
		User:         user.ToUserInfo(),
	}, nil
}

func (s *authService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// issueOTP stores a fresh hashed passcode and hands the plain code to the
// notify service. Unless notify acks that it mailed the code, auth mails it.
func (s *authService) issueOTP(ctx context.Context, user *domain.User, subject string) error {
	code, err := domain.NewOTPCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.otpHashCost)
	if err != nil {
		return fmt.Errorf("failed to hash otp: %w", err)
	}
	expiresAt := s.now().Add(s.config.Auth.OTPTTL)

	if err := s.otpRepo.Create(ctx, user.ID, string(hash), expiresAt); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}

	evt := events.OTPEvent{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		Code:      code,
		ExpiresAt: expiresAt,
	}
	if err := s.requestDelivery(ctx, subject, evt); err != nil {
		logger.WarnContext(ctx, "OTP delivery not acknowledged, mailing directly", "error", err, "user_id", user.ID)
		if err := s.mailer.SendOTP(ctx, user.Email, user.FirstName, code, expiresAt); err != nil {
			logger.ErrorContext(ctx, "Failed to send otp email", "error", err, "user_id", user.ID)
		}
	}
	return nil
}

func (s *authService) requestDelivery(ctx context.Context, subject string, evt events.OTPEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	return s.delivery.Request(ctx, subject, evt)
}
