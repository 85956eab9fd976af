// Package capture optionally archives raw inbound/outbound frames to S3
// when the proxy is run with --test.fix_debug, adapted from the
// teacher's S3-backed recordings store (S3API interface kept narrow so
// tests can supply a fake instead of a real client).
package capture

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client capture depends on, narrow
// enough to fake in tests without standing up a real bucket.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store writes hex-encoded frame captures keyed by session id and
// direction under a configured bucket/prefix.
type Store struct {
	client S3API
	bucket string
	prefix string
}

// NewStore builds a Store using the default AWS credential chain.
func NewStore(ctx context.Context, bucket, prefix string) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: load aws config: %w", err)
	}
	return NewStoreWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewStoreWithClient builds a Store around an already-configured client,
// used by tests to inject a fake S3API.
func NewStoreWithClient(client S3API, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// Direction distinguishes a frame read from a client/upstream from one
// written to it.
type Direction string

const (
	DirectionInbound  Direction = "in"
	DirectionOutbound Direction = "out"
)

// Save archives one frame's raw bytes.
func (s *Store) Save(ctx context.Context, sessionID uint64, dir Direction, at time.Time, frame []byte) error {
	key := fmt.Sprintf("%s/%d/%s/%d-%s.hex", s.prefix, sessionID, dir, at.UnixNano(), dir)
	body := hex.EncodeToString(frame)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader([]byte(body)),
	})
	return err
}
