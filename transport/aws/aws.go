// Package aws publishes to SNS topics and consumes through SQS queues
// subscribed to them. Setting an endpoint targets LocalStack or another
// compatible emulator.
package aws

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/drblury/dagflow/transport"
)

const Name = "aws"

// LocalAccountID is used when an endpoint is configured without a valid account.
const LocalAccountID = "000000000000"

var capabilities = transport.Capabilities{
	Name:           Name,
	Ack:            true,
	Nack:           true,
	Durable:        true,
	MaxMessageSize: 256 * 1024,
}

// Factories create the clients; tests replace them.
var (
	ConfigLoader         = awsconfig.LoadDefaultConfig
	TopicResolverFactory = sns.NewGenerateArnTopicResolver
	PublisherFactory     = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return sns.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return sns.NewSubscriber(cfg, sqsCfg, logger)
	}
)

func init() {
	transport.Register(Name, Build, capabilities)
}

type settings struct {
	aws       aws.Config
	accountID string
	endpoint  *url.URL
}

func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	s, err := load(ctx, cfg)
	if err != nil {
		return transport.Transport{}, err
	}
	if s.aws.Region == "" {
		return transport.Transport{}, fmt.Errorf("aws: no region configured")
	}

	resolver, err := TopicResolverFactory(s.accountID, s.aws.Region)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("aws: topic resolver: %w", err)
	}

	pubCfg := sns.PublisherConfig{
		AWSConfig:     s.aws,
		TopicResolver: resolver,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
		OptFns:        s.snsOptions(),
	}
	publisher, err := PublisherFactory(pubCfg, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(sns.SubscriberConfig{
		AWSConfig:            s.aws,
		OptFns:               s.snsOptions(),
		TopicResolver:        resolver,
		GenerateSqsQueueName: QueueName,
	}, sqs.SubscriberConfig{
		AWSConfig: s.aws,
		OptFns:    s.sqsOptions(),
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	logger.Info("AWS transport ready", watermill.LogFields{
		"region":     s.aws.Region,
		"account_id": s.accountID,
		"endpoint":   s.endpoint != nil,
	})
	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// QueueName names the SQS queue after the topic it subscribes to.
func QueueName(_ context.Context, arn sns.TopicArn) (string, error) {
	topic, err := sns.ExtractTopicNameFromTopicArn(arn)
	if err != nil {
		return "", err
	}
	return string(topic), nil
}

func load(ctx context.Context, cfg transport.Config) (settings, error) {
	var opts []func(*awsconfig.LoadOptions) error
	region := cfg.GetAWSRegion()
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if key, secret := cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey(); key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentials(key, secret)))
	}

	awsCfg, err := ConfigLoader(ctx, opts...)
	if err != nil {
		return settings{}, fmt.Errorf("aws: load config: %w", err)
	}
	if region != "" {
		awsCfg.Region = region
	}

	s := settings{aws: awsCfg, accountID: strings.Trim(cfg.GetAWSAccountID(), "\"' ")}
	if raw := cfg.GetAWSEndpoint(); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return settings{}, fmt.Errorf("aws: invalid endpoint %q", raw)
		}
		s.endpoint = u
		s.aws.BaseEndpoint = aws.String(u.String())
		if len(s.accountID) != 12 {
			s.accountID = LocalAccountID
		}
	}
	return s, nil
}

func (s settings) snsOptions() []func(*amazonsns.Options) {
	if s.endpoint == nil {
		return nil
	}
	return []func(*amazonsns.Options){
		amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{URI: *s.endpoint},
		}),
	}
}

func (s settings) sqsOptions() []func(*amazonsqs.Options) {
	if s.endpoint == nil {
		return nil
	}
	return []func(*amazonsqs.Options){
		amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{URI: *s.endpoint},
		}),
	}
}

func staticCredentials(key, secret string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: key, SecretAccessKey: secret, Source: "dagflow"}, nil
	})
}
