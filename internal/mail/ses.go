package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/config"
)

// SESSender delivers digests through AWS SES v2.
type SESSender struct {
	client   *sesv2.Client
	renderer *Renderer
	from     string
	logger   *logrus.Logger
}

func NewSESSender(ctx context.Context, cfg config.MailConfig, renderer *Renderer, logger *logrus.Logger) (*SESSender, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	from := cfg.FromAddress
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	}

	return &SESSender{
		client:   sesv2.NewFromConfig(awsCfg),
		renderer: renderer,
		from:     from,
		logger:   logger,
	}, nil
}

func (s *SESSender) Send(ctx context.Context, d *Digest) error {
	body, err := s.renderer.Render(d)
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{d.ToAddress}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(d.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send digest to %s: %w", d.ToAddress, err)
	}

	s.logger.WithFields(logrus.Fields{
		"to":         d.ToAddress,
		"message_id": aws.ToString(result.MessageId),
	}).Debug("Digest delivered via SES")
	return nil
}
