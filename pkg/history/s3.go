package history

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/s3client"
	"github.com/sirupsen/logrus"
)

// DefaultS3Prefix is the key prefix for run files when none is configured.
const DefaultS3Prefix = "runs"

// Compile-time interface check.
var _ Store = (*s3Store)(nil)

type s3Store struct {
	log    logrus.FieldLogger
	cfg    *config.S3Config
	client *s3.Client
	prefix string
}

// NewS3Store creates a Store backed by an S3-compatible bucket. Run files
// live directly under the configured prefix (default "runs").
func NewS3Store(log logrus.FieldLogger, cfg *config.S3Config) Store {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultS3Prefix
	}

	return &s3Store{
		log:    log.WithField("component", "s3-history-store"),
		cfg:    cfg,
		client: s3client.New(cfg),
		prefix: prefix,
	}
}

func (s *s3Store) Location() string {
	return fmt.Sprintf("s3://%s/%s/", s.cfg.Bucket, s.prefix)
}

// List returns the object names directly under the prefix.
func (s *s3Store) List(ctx context.Context) ([]string, error) {
	listPrefix := s.prefix + "/"

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.cfg.Bucket),
		Prefix:    aws.String(listPrefix),
		Delimiter: aws.String("/"),
	})

	var names []string

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under %q: %w", listPrefix, err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}

			names = append(names, path.Base(*obj.Key))
		}
	}

	sort.Strings(names)

	return names, nil
}

func (s *s3Store) Get(ctx context.Context, name string) ([]byte, error) {
	key := s3client.JoinKey(s.prefix, name)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	return data, nil
}

// Create writes the object with If-None-Match so that a concurrent writer
// cannot be silently overwritten.
func (s *s3Store) Create(ctx context.Context, name string, data []byte) error {
	key := s3client.JoinKey(s.prefix, name)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return fmt.Errorf("%s: %w", name, ErrExists)
	}

	if !s3client.IsNotFound(err) {
		return fmt.Errorf("checking object %q: %w", key, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	}

	if s.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(s.cfg.StorageClass)
	}

	if s.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(s.cfg.ACL)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		if s3client.IsPreconditionFailed(err) {
			return fmt.Errorf("%s: %w", name, ErrExists)
		}

		return fmt.Errorf("putting object %q: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": s.cfg.Bucket,
	}).Debug("Stored run file")

	return nil
}

func (s *s3Store) Delete(ctx context.Context, name string) error {
	key := s3client.JoinKey(s.prefix, name)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !s3client.IsNotFound(err) {
		return fmt.Errorf("deleting object %q: %w", key, err)
	}

	return nil
}
