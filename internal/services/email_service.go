package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"time"

	"questly/internal/config"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/mail.v2"
)

// EmailServiceInterface defines the interface for email notifications
type EmailServiceInterface interface {
	IsEnabled() bool
	SendDailyReminder(ctx context.Context, userID int) error
	GetReminderCandidates(ctx context.Context, date string) ([]int, error)
}

// EmailService sends transactional email over SMTP and records every send in
// sent_notifications so reminders are at most once per user per day.
type EmailService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
}

// NewEmailService creates a new EmailService instance
func NewEmailService(db *sql.DB, cfg *config.Config, logger *observability.Logger) *EmailService {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}

	return &EmailService{
		db:     db,
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
	}
}

// IsEnabled returns whether email sending is configured and enabled
func (e *EmailService) IsEnabled() bool {
	return e.cfg.Email.Enabled && e.cfg.Email.SMTP.Host != ""
}

const dailyReminderTemplate = `
<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Your daily quests are ready</title>
</head>
<body style="font-family: sans-serif; color: #222; max-width: 560px; margin: 0 auto;">
  <h2>Hi {{.Username}},</h2>
  <p>Fresh topics rotated in today. Complete a quiz to keep your streak alive.</p>
  {{if gt .Streak 0}}
  <p>Your current streak is <strong>{{.Streak}} day{{if ne .Streak 1}}s{{end}}</strong>
     with a <strong>{{printf "%.1fx" .Multiplier}}</strong> points multiplier.</p>
  {{else}}
  <p>Start a streak today and earn a points multiplier tomorrow.</p>
  {{end}}
  <p><a href="{{.AppURL}}/daily">Open today's quests</a></p>
  <p style="color: #888; font-size: 12px;">
    {{.Date}} &middot; <a href="{{.AppURL}}/settings">Notification settings</a>
  </p>
</body>
</html>`

type reminderData struct {
	Username   string
	Streak     int
	Multiplier float64
	AppURL     string
	Date       string
}

// SendDailyReminder sends the daily reminder to one user and records the
// outcome. Skips silently when email is disabled or the user has no address.
func (e *EmailService) SendDailyReminder(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "SendDailyReminder",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		return nil
	}

	var username string
	var email sql.NullString
	var streak sql.NullInt64
	err = e.db.QueryRowContext(ctx, `
		SELECT u.username, u.email, up.streak
		FROM users u
		LEFT JOIN user_points up ON up.user_id = u.id
		WHERE u.id = $1
	`, userID).Scan(&username, &email, &streak)
	if err == sql.ErrNoRows {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d", userID)
	}
	if err != nil {
		return contextutils.WrapError(err, "failed to load reminder recipient")
	}
	if !email.Valid || !contextutils.IsValidEmail(email.String) {
		e.logger.Warn(ctx, "User has no usable email address, skipping reminder", map[string]interface{}{
			"user_id": userID,
		})
		return nil
	}

	currentStreak := int(streak.Int64)
	data := reminderData{
		Username:   username,
		Streak:     currentStreak,
		Multiplier: ComputeMultiplier(currentStreak),
		AppURL:     e.cfg.Server.AppBaseURL,
		Date:       time.Now().Format("January 2, 2006"),
	}

	subject := "Your daily quests are ready"
	sendErr := e.send(ctx, email.String, subject, data)

	status := "sent"
	errorMessage := ""
	if sendErr != nil {
		status = "failed"
		errorMessage = sendErr.Error()
	}
	if recordErr := e.recordNotification(ctx, userID, "daily_reminder", subject, status, errorMessage); recordErr != nil {
		e.logger.Error(ctx, "Failed to record sent notification", recordErr, map[string]interface{}{
			"user_id": userID,
		})
	}

	if sendErr != nil {
		return contextutils.WrapError(sendErr, "failed to send daily reminder")
	}
	span.SetAttributes(attribute.String("email.status", status))
	return nil
}

// GetReminderCandidates returns ids of users with an email address who have
// not yet received a daily reminder on the given date.
func (e *EmailService) GetReminderCandidates(ctx context.Context, date string) (result []int, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "GetReminderCandidates",
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := e.db.QueryContext(ctx, `
		SELECT u.id
		FROM users u
		WHERE u.email IS NOT NULL AND u.email <> ''
		  AND NOT EXISTS (
			SELECT 1 FROM sent_notifications sn
			WHERE sn.user_id = u.id
			  AND sn.notification_type = 'daily_reminder'
			  AND sn.status = 'sent'
			  AND sn.sent_at::date = $1::date
		  )
		ORDER BY u.id
	`, date)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query reminder candidates")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			e.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan candidate id")
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate reminder candidates")
	}

	span.SetAttributes(attribute.Int("email.candidates", len(ids)))
	return ids, nil
}

func (e *EmailService) send(ctx context.Context, to, subject string, data reminderData) error {
	if e.dialer == nil {
		return contextutils.WrapError(contextutils.ErrServiceUnavailable, "email dialer not configured")
	}

	tmpl, err := template.New("daily_reminder").Parse(dailyReminderTemplate)
	if err != nil {
		return contextutils.WrapError(err, "failed to parse reminder template")
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return contextutils.WrapError(err, "failed to render reminder template")
	}

	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", e.cfg.Email.SMTP.FromName, e.cfg.Email.SMTP.FromAddress))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body.String())

	if err := e.dialer.DialAndSend(m); err != nil {
		e.logger.Error(ctx, "Failed to send email", err, map[string]interface{}{
			"to":      to,
			"subject": subject,
		})
		return err
	}
	return nil
}

func (e *EmailService) recordNotification(ctx context.Context, userID int, notificationType, subject, status, errorMessage string) error {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO sent_notifications (user_id, notification_type, subject, status, error_message)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, userID, notificationType, subject, status, errorMessage)
	if err != nil {
		return contextutils.WrapError(err, "failed to record sent notification")
	}
	return nil
}
