// Package storage wraps the AWS S3 SDK behind the narrow ObjectStore surface
// the transfer engine needs.
package storage

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// ClientConfig holds S3 client construction parameters.
type ClientConfig struct {
	Region      string
	EndpointURL string
	MaxRetries  int
	Timeout     time.Duration
	// Explicit credentials for custom S3 providers; empty means the default
	// credential chain.
	AccessKey string
	SecretKey string
}

// NewClient builds an S3 client. Custom endpoints get path-style addressing
// and no redirect following, which most non-AWS providers require.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		// The SDK needs a region for signing even when the endpoint ignores it.
		region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.EndpointURL != "" {
		loadOpts = append(loadOpts, config.WithHTTPClient(&http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	clientOpts := []func(*s3.Options){
		func(o *s3.Options) { o.RetryMaxAttempts = cfg.MaxRetries },
	}
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}
