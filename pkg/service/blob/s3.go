package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbd54566975/ssi-vc-service/config"
)

const contentType = "application/octet-stream"

type s3Uploader interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps blobs in an S3 bucket, one object per reference.
type S3Store struct {
	client s3Uploader
	bucket string
}

func NewS3Store(client s3Uploader, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// NewS3StoreFromConfig loads AWS credentials from the environment. A custom endpoint switches to path style
// addressing, as S3 compatible stores expect. Requests are traced.
func NewS3StoreFromConfig(ctx context.Context, cfg config.BlobServiceConfig) (*S3Store, error) {
	return newS3Store(ctx, cfg, nil)
}

// newS3Store sends requests through base when it is set, otherwise through the client the AWS config resolved,
// which carries settings such as AWS_CA_BUNDLE.
func newS3Store(ctx context.Context, cfg config.BlobServiceConfig, base http.RoundTripper) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 blob store requires a bucket")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}
	if base == nil {
		base = clientTransport{client: awsCfg.HTTPClient}
	}
	httpClient := tracedClient{transport: otelhttp.NewTransport(base)}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.HTTPClient = httpClient
		if cfg.Endpoint != "" {
			o.EndpointResolver = s3.EndpointResolverFromURL(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, cfg.Bucket), nil
}

// clientTransport lets an SDK HTTP client sit behind an http.RoundTripper.
type clientTransport struct {
	client aws.HTTPClient
}

func (t clientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}

type tracedClient struct {
	transport http.RoundTripper
}

func (c tracedClient) Do(req *http.Request) (*http.Response, error) {
	return c.transport.RoundTrip(req)
}

func (s *S3Store) Put(ctx context.Context, ref string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Body:        bytes.NewReader(data),
		Key:         aws.String(ref),
		Bucket:      aws.String(s.bucket),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return errors.Wrap(err, "uploading blob to s3")
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, ref string) ([]byte, error) {
	res, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "getting blob from s3")
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading s3 object body")
	}
	return data, nil
}
