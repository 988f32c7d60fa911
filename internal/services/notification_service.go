package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkglogger "github.com/BradenHooton/covernote/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// LockoutNotice describes a lockout that has just started
type LockoutNotice struct {
	IPAddress   string
	Username    string
	UserAgent   string
	UnblockTime time.Time
}

// LockoutNotifier alerts operators when an address becomes locked out
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, notice LockoutNotice) error
}

// SESClient is the subset of the SES API used for alerts
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESLockoutNotifier emails lockout alerts using AWS SES
type SESLockoutNotifier struct {
	client      SESClient
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewSESLockoutNotifier creates a notifier backed by the default AWS credential chain
func NewSESLockoutNotifier(ctx context.Context, region, fromAddress, toAddress string, logger *slog.Logger) (*SESLockoutNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESLockoutNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, toAddress, logger), nil
}

// NewSESLockoutNotifierWithClient creates a notifier around an existing SES client
func NewSESLockoutNotifierWithClient(client SESClient, fromAddress, toAddress string, logger *slog.Logger) *SESLockoutNotifier {
	return &SESLockoutNotifier{
		client:      client,
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}
}

// NotifyLockout sends a plain-text alert for a new lockout
func (n *SESLockoutNotifier) NotifyLockout(ctx context.Context, notice LockoutNotice) error {
	textBody := fmt.Sprintf(`Login lockout started

Address:       %s
Last username: %s
User agent:    %s
Locked until:  %s

Five failed logins were recorded from this address within fifteen minutes.
Logins from it are refused until the time above.
`, notice.IPAddress, notice.Username, notice.UserAgent, notice.UnblockTime.UTC().Format(time.RFC1123))

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(fmt.Sprintf("Login lockout: %s", notice.IPAddress)),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send lockout alert: %w", err)
	}

	n.logger.Info("lockout alert sent",
		slog.String("ip_address", notice.IPAddress),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogLockoutNotifier writes lockout alerts to the log when no mail transport is configured
type LogLockoutNotifier struct {
	logger *slog.Logger
}

func NewLogLockoutNotifier(logger *slog.Logger) *LogLockoutNotifier {
	return &LogLockoutNotifier{logger: logger}
}

func (n *LogLockoutNotifier) NotifyLockout(ctx context.Context, notice LockoutNotice) error {
	n.logger.WarnContext(ctx, "login lockout started",
		slog.String("ip_address", notice.IPAddress),
		slog.String("username", pkglogger.MaskUsername(notice.Username)),
		slog.Time("unblock_time", notice.UnblockTime))
	return nil
}
