package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/ndiakov/auth-service/internal/infrastructure/auth"
	"github.com/ndiakov/auth-service/internal/infrastructure/kafka"
	obs "github.com/ndiakov/auth-service/internal/infrastructure/observability"
	"github.com/ndiakov/auth-service/internal/infrastructure/redis"
	"github.com/ndiakov/auth-service/internal/models"
	"github.com/ndiakov/auth-service/internal/password"
	"github.com/ndiakov/auth-service/internal/repository"
	pkgerrors "github.com/ndiakov/auth-service/pkg/errors"
)

const (
	authEventsTopic  = "auth-events"
	maxSignInRetries = 5
	attemptWindow    = 15 * time.Minute
)

var usernameRe = regexp.MustCompile(`^[0-9a-zA-Z]{2,25}$`)

type AuthService interface {
	Register(ctx context.Context, username, plaintext string) (string, error)
	SignIn(ctx context.Context, username, plaintext string) (*models.SessionTokens, error)
	Refresh(ctx context.Context, presentedToken string) (*models.RotatedTokens, error)
	Logout(ctx context.Context, presentedToken string) (string, error)
}

type authService struct {
	credRepo repository.CredentialRepository
	tokens   *auth.TokenService
	redis    redis.RedisClient
	producer kafka.KafkaProducer
}

func NewAuthService(
	credRepo repository.CredentialRepository,
	tokens *auth.TokenService,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
) *authService {
	return &authService{
		credRepo: credRepo,
		tokens:   tokens,
		redis:    redisClient,
		producer: producer,
	}
}

func (s *authService) Register(ctx context.Context, username, plaintext string) (_ string, err error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()
	defer recordOp("register", time.Now(), &err)

	if err := validateCredentials(username, plaintext); err != nil {
		span.SetStatus(codes.Error, "invalid input")
		return "", err
	}

	existing, err := s.credRepo.GetByUsername(ctx, username)
	if existing != nil {
		span.SetStatus(codes.Error, "username already exists")
		slog.Warn("username already exists", "username", username)
		return "", pkgerrors.ErrUsernameExists
	}
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user check failed")
		slog.Error("failed to check username availability", "username", username, "error", err)
		return "", fmt.Errorf("%w: failed to check username availability", pkgerrors.ErrInternal)
	}

	digest, err := password.Hash(plaintext)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		slog.Error("failed to hash password", "username", username, "error", err)
		return "", fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	cred := &models.Credential{
		Username:     username,
		PasswordHash: digest,
	}
	if err := s.credRepo.Create(ctx, cred); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUsernameExists) {
			return "", err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential creation failed")
		slog.Error("failed to create credential", "username", username, "error", err)
		return "", fmt.Errorf("%w: failed to create credential", pkgerrors.ErrInternal)
	}

	// Write confirmation: the row must be readable right after the insert.
	if _, err := s.credRepo.GetByUsername(ctx, username); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential not stored")
		slog.Error("credential missing after insert", "username", username, "error", err)
		return "", fmt.Errorf("%w: credential was not stored", pkgerrors.ErrInternal)
	}

	s.publishEvent(models.EventUserRegistered, username)
	slog.Info("user registered", "username", username)
	return username, nil
}

func (s *authService) SignIn(ctx context.Context, username, plaintext string) (_ *models.SessionTokens, err error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "SignIn")
	defer span.End()
	defer recordOp("sign_in", time.Now(), &err)

	if err := validateCredentials(username, plaintext); err != nil {
		span.SetStatus(codes.Error, "invalid input")
		return nil, err
	}

	if err := s.checkAttempts(ctx, username); err != nil {
		span.SetStatus(codes.Error, "too many attempts")
		return nil, err
	}

	cred, err := s.credRepo.GetByUsername(ctx, username)
	if err != nil {
		span.SetStatus(codes.Error, "user not found")
		slog.Warn("sign-in for unknown user", "username", username)
		return nil, err
	}

	verified, err := password.Verify(plaintext, cred.PasswordHash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "digest verification failed")
		slog.Error("failed to verify password digest", "username", username, "error", err)
		return nil, fmt.Errorf("%w: failed to verify password digest", pkgerrors.ErrInternal)
	}
	if !verified {
		s.bumpAttempts(ctx, username)
		span.SetStatus(codes.Error, "invalid password")
		slog.Warn("invalid password", "username", username)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	now := time.Now()
	accessToken, err := s.tokens.MintAccess(username, now)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to sign access token", "username", username, "error", err)
		return nil, fmt.Errorf("%w: failed to sign access token", pkgerrors.ErrInternal)
	}
	refreshToken, refreshExpiry, err := s.tokens.MintRefresh(username, now)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to sign refresh token", "username", username, "error", err)
		return nil, fmt.Errorf("%w: failed to sign refresh token", pkgerrors.ErrInternal)
	}

	// A prior refresh token is overwritten unconditionally: one live session
	// per account, the newest sign-in wins.
	if err := s.credRepo.SetRefreshToken(ctx, username, refreshToken, refreshExpiry.Unix()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh token persist failed")
		slog.Error("failed to persist refresh token", "username", username, "error", err)
		return nil, fmt.Errorf("%w: failed to persist refresh token", pkgerrors.ErrInternal)
	}

	if err := s.confirmStoredToken(ctx, username, refreshToken); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stored token mismatch")
		return nil, err
	}

	if err := s.redis.Del(ctx, attemptsKey(username)); err != nil {
		slog.Warn("failed to reset sign-in attempts", "username", username, "error", err)
	}

	s.publishEvent(models.EventUserSignedIn, username)
	slog.Info("user signed in", "username", username)
	return &models.SessionTokens{
		Username:     username,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *authService) Refresh(ctx context.Context, presentedToken string) (_ *models.RotatedTokens, err error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Refresh")
	defer span.End()
	defer recordOp("refresh", time.Now(), &err)

	if presentedToken == "" {
		span.SetStatus(codes.Error, "no refresh token")
		return nil, pkgerrors.ErrNoRefreshToken
	}

	cred, err := s.credRepo.GetByRefreshToken(ctx, presentedToken)
	if err != nil {
		span.SetStatus(codes.Error, "refresh token not found")
		slog.Warn("refresh token not found", "error", err)
		return nil, err
	}

	// The stored token is verified, not the presented one: the store is the
	// source of truth, the cookie is only a transport copy.
	claims, err := s.tokens.VerifyRefresh(cred.RefreshToken.String)
	if err != nil {
		span.SetStatus(codes.Error, "refresh token verification failed")
		if stderrors.Is(err, auth.ErrTokenExpired) {
			slog.Warn("refresh token signature expired", "username", cred.Username)
			return nil, pkgerrors.ErrRefreshTokenExpired
		}
		slog.Warn("refresh token signature invalid", "username", cred.Username, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrRefreshSignatureInvalid, err)
	}

	now := time.Now()
	originalExpiry := claims.ExpiresAt.Time
	if !now.Before(originalExpiry) {
		span.SetStatus(codes.Error, "refresh token expired")
		slog.Warn("refresh token expired", "username", cred.Username)
		return nil, pkgerrors.ErrRefreshTokenExpired
	}

	if claims.Username != cred.Username {
		span.SetStatus(codes.Error, "subject mismatch")
		slog.Error("token subject does not match record",
			"stored_username", cred.Username,
			"token_username", claims.Username)
		return nil, pkgerrors.ErrSubjectMismatch
	}

	accessToken, err := s.tokens.MintAccess(cred.Username, now)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to sign access token", "username", cred.Username, "error", err)
		return nil, fmt.Errorf("%w: failed to sign access token", pkgerrors.ErrInternal)
	}
	// The rotated token carries the original expiry: total session length is
	// bounded from the first sign-in no matter how often it is refreshed.
	newRefreshToken, err := s.tokens.ReSignRefresh(cred.Username, now, originalExpiry)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to re-sign refresh token", "username", cred.Username, "error", err)
		return nil, fmt.Errorf("%w: failed to re-sign refresh token", pkgerrors.ErrInternal)
	}

	if err := s.credRepo.RotateRefreshToken(ctx, presentedToken, newRefreshToken); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rotation failed")
		slog.Error("failed to rotate refresh token", "username", cred.Username, "error", err)
		return nil, fmt.Errorf("%w: failed to rotate refresh token", pkgerrors.ErrInternal)
	}

	if err := s.confirmStoredToken(ctx, cred.Username, newRefreshToken); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stored token mismatch")
		return nil, err
	}

	s.publishEvent(models.EventSessionRefreshed, cred.Username)
	slog.Info("session refreshed", "username", cred.Username)
	return &models.RotatedTokens{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		RemainingTTL: originalExpiry.Sub(now),
	}, nil
}

func (s *authService) Logout(ctx context.Context, presentedToken string) (_ string, err error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Logout")
	defer span.End()
	defer recordOp("logout", time.Now(), &err)

	if presentedToken == "" {
		span.SetStatus(codes.Error, "no refresh token")
		return "", pkgerrors.ErrAlreadyLoggedOut
	}

	cred, err := s.credRepo.GetByRefreshToken(ctx, presentedToken)
	if err != nil {
		span.SetStatus(codes.Error, "refresh token not found")
		slog.Warn("logout with unknown refresh token", "error", err)
		return "", err
	}

	if err := s.credRepo.ClearRefreshToken(ctx, presentedToken); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clear failed")
		slog.Error("failed to clear refresh token", "username", cred.Username, "error", err)
		return "", fmt.Errorf("%w: failed to clear refresh token", pkgerrors.ErrInternal)
	}

	// Write confirmation: no row may still hold the just-cleared token.
	_, err = s.credRepo.GetByRefreshToken(ctx, presentedToken)
	if err == nil {
		span.SetStatus(codes.Error, "refresh token still present")
		slog.Error("refresh token still present after clear", "username", cred.Username)
		return "", fmt.Errorf("%w: refresh token of user '%s' still exists", pkgerrors.ErrInternal, cred.Username)
	}
	if !stderrors.Is(err, pkgerrors.ErrRefreshTokenNotFound) {
		span.RecordError(err)
		slog.Error("failed to confirm refresh token clear", "username", cred.Username, "error", err)
		return "", fmt.Errorf("%w: failed to confirm refresh token clear", pkgerrors.ErrInternal)
	}

	s.publishEvent(models.EventSessionTerminated, cred.Username)
	slog.Info("user logged out", "username", cred.Username)
	return cred.Username, nil
}

// confirmStoredToken re-reads the record and byte-compares the stored
// refresh token to the one just written. A divergence means the durable
// state no longer matches what was computed and the request must fail.
func (s *authService) confirmStoredToken(ctx context.Context, username, wantToken string) error {
	cred, err := s.credRepo.GetByUsername(ctx, username)
	if err != nil {
		slog.Error("failed to read back refresh token", "username", username, "error", err)
		return fmt.Errorf("%w: failed to read back refresh token", pkgerrors.ErrInternal)
	}
	if !cred.RefreshToken.Valid || cred.RefreshToken.String != wantToken {
		return fmt.Errorf("%w: %v", pkgerrors.ErrInternal, pkgerrors.ErrStoredTokenMismatch)
	}
	return nil
}

func (s *authService) checkAttempts(ctx context.Context, username string) error {
	val, err := s.redis.Get(ctx, attemptsKey(username))
	if err != nil {
		if !stderrors.Is(err, redis.ErrKeyNotFound) {
			slog.Warn("failed to read sign-in attempts", "username", username, "error", err)
		}
		return nil
	}
	attempts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil
	}
	if attempts >= maxSignInRetries {
		slog.Warn("sign-in blocked by attempt limiter", "username", username, "attempts", attempts)
		return pkgerrors.ErrTooManyAttempts
	}
	return nil
}

func (s *authService) bumpAttempts(ctx context.Context, username string) {
	if _, err := s.redis.Incr(ctx, attemptsKey(username), attemptWindow); err != nil {
		slog.Warn("failed to bump sign-in attempts", "username", username, "error", err)
	}
}

func attemptsKey(username string) string {
	return fmt.Sprintf("signin:%s:attempts", username)
}

func (s *authService) publishEvent(eventType, username string) {
	event := &models.AuthEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		Username:   username,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal auth event", "event_type", eventType, "error", err)
		return
	}
	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.producer.Send(context.Background(), authEventsTopic, username, payload); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to publish auth event after retries",
			"event_type", eventType,
			"username", username)
	}()
}

func validateCredentials(username, plaintext string) error {
	if !usernameRe.MatchString(username) {
		return fmt.Errorf("%w: username must be 2-25 alphanumeric characters", pkgerrors.ErrInvalidInput)
	}
	if len(plaintext) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", pkgerrors.ErrInvalidInput)
	}
	return nil
}

func recordOp(operation string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	obs.AuthOperations.WithLabelValues(operation, status).Inc()
	obs.AuthOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
