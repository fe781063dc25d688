// Package ses implements a Transport that sends emails via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/mail-bridge/internal/email"
)

// Config holds the configuration for creating a Transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// API is the subset of the SES v2 client used by the transport.
// Used for testing with mock implementations.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// Transport sends emails via the AWS SES v2 API.
type Transport struct {
	client API
}

// New creates a new Transport with the given configuration. The SDK's own
// retryer is limited to a single attempt; failed sends surface to the caller.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Transport{client: sesv2.NewFromConfig(awsCfg)}, nil
}

// NewWithClient creates a Transport with a custom client, used for testing.
func NewWithClient(client API) *Transport {
	return &Transport{client: client}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "ses"
}

// Verify checks the credentials by reading the account and confirms that
// sending is enabled.
func (t *Transport) Verify(ctx context.Context) error {
	out, err := t.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return fmt.Errorf("failed to get SES account: %w", err)
	}
	if !out.SendingEnabled {
		return errors.New("sending is disabled for this SES account")
	}
	return nil
}

// Send delivers an email message via AWS SES v2.
// Messages with attachments are sent as raw MIME; others use the simple
// content format. SES either accepts every recipient or fails the call.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (*email.Result, error) {
	rcpts, err := msg.Recipients()
	if err != nil {
		return nil, err
	}
	if len(rcpts) == 0 {
		return nil, errors.New("no recipients defined")
	}

	var input *sesv2.SendEmailInput
	if len(msg.Attachments) > 0 {
		input, err = buildRawInput(msg)
	} else {
		input, err = buildSimpleInput(msg)
	}
	if err != nil {
		return nil, err
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("SES API request failed: %w", err)
	}

	return &email.Result{
		MessageID: aws.ToString(out.MessageId),
		Accepted:  rcpts,
		Rejected:  []string{},
	}, nil
}

// buildSimpleInput creates a SES SendEmailInput for emails without attachments.
func buildSimpleInput(msg *email.Message) (*sesv2.SendEmailInput, error) {
	dest, err := destination(msg)
	if err != nil {
		return nil, err
	}

	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTML),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.Text != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.Text),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      dest,
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	return input, nil
}

// buildRawInput renders the full MIME message. The destination is still set
// explicitly so Bcc recipients, absent from the headers, receive a copy.
func buildRawInput(msg *email.Message) (*sesv2.SendEmailInput, error) {
	dest, err := destination(msg)
	if err != nil {
		return nil, err
	}

	raw, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to build raw message: %w", err)
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      dest,
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}, nil
}

func destination(msg *email.Message) (*types.Destination, error) {
	to, err := bareAddresses(msg.To)
	if err != nil {
		return nil, err
	}
	cc, err := bareAddresses(msg.Cc)
	if err != nil {
		return nil, err
	}
	bcc, err := bareAddresses(msg.Bcc)
	if err != nil {
		return nil, err
	}
	return &types.Destination{
		ToAddresses:  to,
		CcAddresses:  cc,
		BccAddresses: bcc,
	}, nil
}

func bareAddresses(list email.AddressList) ([]string, error) {
	addrs, err := list.Addresses()
	if err != nil {
		return nil, err
	}
	var result []string
	for _, addr := range addrs {
		result = append(result, addr.Address)
	}
	return result, nil
}
