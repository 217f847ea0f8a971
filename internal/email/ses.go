package email

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
)

// =============================================================================
// SES API Transport Implementation
// =============================================================================

// SESOptions configures the SES API transport.
type SESOptions struct {
	// Region of the SES endpoint. Empty derives it from the active config's
	// SMTP host (email-smtp.<region>.amazonaws.com).
	Region string

	// Static IAM credentials. When empty, the default AWS credential chain
	// (env, shared config, instance role) is used.
	AccessKeyID     string
	SecretAccessKey string

	// Timeout bounds one API call. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// SESTransport sends through the SES SendEmail API instead of SMTP. The
// active config still supplies the From identity.
type SESTransport struct {
	awsCfg aws.Config
	opts   SESOptions
}

// NewSESTransport loads AWS configuration and creates the transport.
func NewSESTransport(ctx context.Context, opts SESOptions) (*SESTransport, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESTransport{awsCfg: awsCfg, opts: opts}, nil
}

// Name implements Transport.
func (t *SESTransport) Name() string {
	return "ses"
}

// Deliver implements Transport.
func (t *SESTransport) Deliver(ctx context.Context, cfg domain.SMTPConfig, msg Message) (string, error) {
	client, err := t.client(cfg)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")},
	}
	if msg.IsHTML() {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}

	out, err := client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(encodeAddress(cfg.FromName, cfg.FromEmail)),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	})
	if err != nil {
		return "", describeAPIError(err)
	}

	return aws.ToString(out.MessageId), nil
}

// Probe implements Prober by reading the account's send quota, which fails
// for bad credentials or a wrong region.
func (t *SESTransport) Probe(ctx context.Context, cfg domain.SMTPConfig) error {
	client, err := t.client(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	if _, err := client.GetSendQuota(ctx, &ses.GetSendQuotaInput{}); err != nil {
		return describeAPIError(err)
	}
	return nil
}

func (t *SESTransport) client(cfg domain.SMTPConfig) (*ses.Client, error) {
	region := t.opts.Region
	if region == "" {
		region = RegionFromHost(cfg.Host)
	}
	if region == "" {
		region = t.awsCfg.Region
	}
	if region == "" {
		return nil, fmt.Errorf("cannot determine SES region from host %q; set SES_REGION", cfg.Host)
	}

	return ses.NewFromConfig(t.awsCfg, func(o *ses.Options) {
		o.Region = region
	}), nil
}

var sesHostPattern = regexp.MustCompile(`^email-smtp(?:-fips)?\.([a-z0-9-]+)\.amazonaws\.com$`)

// RegionFromHost extracts the region from an SES SMTP endpoint hostname.
func RegionFromHost(host string) string {
	m := sesHostPattern.FindStringSubmatch(host)
	if m == nil {
		return ""
	}
	return m[1]
}

// describeAPIError keeps the SES error code in the message shown to the
// operator (e.g. "MessageRejected: Email address is not verified").
func describeAPIError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err
}

// =============================================================================
// Compile-time interface check
// =============================================================================

var (
	_ Transport = (*SESTransport)(nil)
	_ Prober    = (*SESTransport)(nil)
)
