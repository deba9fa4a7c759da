package services

import (
	"context"
	"database/sql"
	"time"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceInterface defines the interface for user account operations
type UserServiceInterface interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	EnsureUserFromIdentity(ctx context.Context, externalID, email string) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)
	EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error
	IsPremium(ctx context.Context, userID int) (bool, error)
	ApplySubscriptionEvent(ctx context.Context, event *models.SubscriptionEvent) error
	IncrementChatUsage(ctx context.Context, userID int, date string) (int, error)
	UpdateLastActive(ctx context.Context, userID int) error
}

// UserService implements user account storage over Postgres
type UserService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// NewUserService creates a new UserService instance
func NewUserService(db *sql.DB, cfg *config.Config, logger *observability.Logger) *UserService {
	return &UserService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

const userColumns = `
	id, external_id, username, email, password_hash, timezone,
	is_premium, is_admin, plan, subscription_status, current_period_end,
	created_at, last_active
`

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Timezone,
		&user.IsPremium,
		&user.IsAdmin,
		&user.Plan,
		&user.SubscriptionStatus,
		&user.CurrentPeriodEnd,
		&user.CreatedAt,
		&user.LastActive,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID returns the user with the given id, or RecordNotFound.
func (s *UserService) GetUserByID(ctx context.Context, id int) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "GetUserByID",
		observability.AttributeUserID(id),
	)
	defer observability.FinishSpan(span, &err)

	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d", id)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query user")
	}
	return user, nil
}

// GetUserByUsername returns the user with the given username, or RecordNotFound.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "GetUserByUsername")
	defer observability.FinishSpan(span, &err)

	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %q", username)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query user")
	}
	return user, nil
}

// EnsureUserFromIdentity bridges an identity-provider subject to a local
// account, creating one on first sight. The external id is the stable key;
// email is refreshed on each call.
func (s *UserService) EnsureUserFromIdentity(ctx context.Context, externalID, email string) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "EnsureUserFromIdentity")
	defer observability.FinishSpan(span, &err)

	if externalID == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "external id is required")
	}

	user, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (external_id, username, email)
		VALUES ($1, $1, NULLIF($2, ''))
		ON CONFLICT (external_id) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email)
		RETURNING `+userColumns, externalID, email))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to upsert identity user")
	}
	return user, nil
}

// AuthenticateUser verifies a username/password pair against the stored hash.
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (result *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "AuthenticateUser")
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "invalid username or password")
		}
		return nil, err
	}
	if !user.PasswordHash.Valid {
		return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "account has no password login")
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password)); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "invalid username or password")
	}

	return user, nil
}

// EnsureAdminUserExists creates the admin user on first boot, or realigns
// its password when the configured one changes.
func (s *UserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "EnsureAdminUserExists")
	defer observability.FinishSpan(span, &err)

	if adminUsername == "" || adminPassword == "" {
		return contextutils.WrapError(contextutils.ErrMissingRequired, "admin username and password are required")
	}

	existing, err := s.GetUserByUsername(ctx, adminUsername)
	if err != nil && !contextutils.IsError(err, contextutils.ErrRecordNotFound) {
		return err
	}
	err = nil

	if existing != nil {
		if existing.PasswordHash.Valid {
			if compareErr := bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash.String), []byte(adminPassword)); compareErr == nil {
				return nil
			}
		}
		hashed, hashErr := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if hashErr != nil {
			return contextutils.WrapError(hashErr, "failed to hash admin password")
		}
		if _, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, is_admin = TRUE WHERE id = $2`, string(hashed), existing.ID); err != nil {
			return contextutils.WrapError(err, "failed to update admin user")
		}
		s.logger.Info(ctx, "Admin password realigned with configuration", map[string]interface{}{"user_id": existing.ID})
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return contextutils.WrapError(err, "failed to hash admin password")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin, is_premium)
		VALUES ($1, $2, TRUE, TRUE)
	`, adminUsername, string(hashed))
	if err != nil {
		return contextutils.WrapError(err, "failed to create admin user")
	}

	s.logger.Info(ctx, "Admin user created", map[string]interface{}{"username": adminUsername})
	return nil
}

// IsPremium reports whether a user currently has premium entitlements. A
// lapsed period end downgrades regardless of the stored flag.
func (s *UserService) IsPremium(ctx context.Context, userID int) (result bool, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "IsPremium",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}

	premium := user.IsPremium
	if premium && user.CurrentPeriodEnd.Valid && user.CurrentPeriodEnd.Time.Before(time.Now()) {
		premium = false
	}
	span.SetAttributes(observability.AttributeTier(premium))
	return premium, nil
}

// ApplySubscriptionEvent upserts plan/status/period-end from a payments
// provider webhook event.
func (s *UserService) ApplySubscriptionEvent(ctx context.Context, event *models.SubscriptionEvent) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ApplySubscriptionEvent",
		observability.AttributeUserID(event.UserID),
		attribute.String("subscription.event", event.Type),
	)
	defer observability.FinishSpan(span, &err)

	var periodEnd interface{}
	if event.CurrentPeriodEnd != "" {
		parsed, parseErr := time.Parse(time.RFC3339, event.CurrentPeriodEnd)
		if parseErr != nil {
			return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid current_period_end %q", event.CurrentPeriodEnd)
		}
		periodEnd = parsed
	}

	premium := false
	switch event.Type {
	case "created", "updated":
		premium = event.Status == "active" || event.Status == "trialing"
	case "deleted":
		premium = false
	default:
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown subscription event type %q", event.Type)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_premium = $1,
		    plan = NULLIF($2, ''),
		    subscription_status = NULLIF($3, ''),
		    current_period_end = $4
		WHERE id = $5
	`, premium, event.Plan, event.Status, periodEnd, event.UserID)
	if err != nil {
		return contextutils.WrapError(err, "failed to apply subscription event")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if affected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d", event.UserID)
	}

	s.logger.Info(ctx, "Subscription event applied", map[string]interface{}{
		"user_id": event.UserID,
		"type":    event.Type,
		"status":  event.Status,
	})
	return nil
}

// IncrementChatUsage consumes one chat message from the user's daily quota
// and returns the new count. Fails with QuotaExceeded when the tier limit is
// reached; the conditional upsert keeps concurrent calls from overshooting.
func (s *UserService) IncrementChatUsage(ctx context.Context, userID int, date string) (count int, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "IncrementChatUsage",
		observability.AttributeUserID(userID),
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	premium, err := s.IsPremium(ctx, userID)
	if err != nil {
		return 0, err
	}
	limit := s.cfg.ChatLimitForTier(premium)

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO chat_usage (user_id, usage_date, message_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, usage_date) DO UPDATE SET
			message_count = chat_usage.message_count + 1,
			updated_at = NOW()
		WHERE chat_usage.message_count < $3
		RETURNING message_count
	`, userID, date, limit).Scan(&count)
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Int("chat.limit", limit))
		return limit, contextutils.WrapErrorf(contextutils.ErrQuotaExceeded, "daily chat limit of %d reached", limit)
	}
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to increment chat usage")
	}

	span.SetAttributes(attribute.Int("chat.count", count), attribute.Int("chat.limit", limit))
	return count, nil
}

// GetAllUsers returns every user ordered by id. Admin CLI helper.
func (s *UserService) GetAllUsers(ctx context.Context) (result []*models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "GetAllUsers")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query users")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var users []*models.User
	for rows.Next() {
		user, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan user")
		}
		users = append(users, user)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate users")
	}
	return users, nil
}

// UpdateUserPassword replaces a user's password hash.
func (s *UserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "UpdateUserPassword",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	if newPassword == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "password cannot be empty")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return contextutils.WrapError(err, "failed to hash password")
	}

	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, string(hashed), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update password")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if affected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d", userID)
	}
	return nil
}

// UpdateLastActive stamps the user's last_active time.
func (s *UserService) UpdateLastActive(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "UpdateLastActive",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `UPDATE users SET last_active = NOW() WHERE id = $1`, userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update last active")
	}
	return nil
}
