package utils

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// R2ProofStore keeps proof-of-payment files in a Cloudflare R2 bucket.
type R2ProofStore struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

func NewR2ProofStore(ctx context.Context, c R2Config) (*R2ProofStore, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	cdn := strings.TrimRight(c.CDNBaseURL, "/")
	if cdn == "" {
		cdn = endpoint + "/" + c.Bucket
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKeyID, c.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &R2ProofStore{client: client, bucket: c.Bucket, cdnBaseURL: cdn}, nil
}

// ProofKey builds the object key for an uploaded proof, keeping the original extension.
func ProofKey(accountID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join("proofs", accountID, uuid.NewString()+ext)
}

// Upload stores a multipart file under key and returns the key.
func (r *R2ProofStore) Upload(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(fileHeader.Size),
		ContentType:   aws.String(fileHeader.Header.Get("Content-Type")),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return key, nil
}

// Exists reports whether a proof object is present. ref may be a bare key or a public URL.
func (r *R2ProofStore) Exists(ctx context.Context, ref string) (bool, error) {
	key := r.keyFromRef(ref)
	if key == "" {
		return false, nil
	}
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return false, nil
	}
	return false, fmt.Errorf("failed to check proof %q: %w", key, err)
}

// Delete removes a proof object. Deleting a missing key is not an error.
func (r *R2ProofStore) Delete(ctx context.Context, ref string) error {
	key := r.keyFromRef(ref)
	if key == "" {
		return nil
	}
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete proof %q: %w", key, err)
	}
	return nil
}

// PublicURL returns the CDN URL of key.
func (r *R2ProofStore) PublicURL(key string) string {
	return r.cdnBaseURL + "/" + key
}

func (r *R2ProofStore) keyFromRef(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, r.cdnBaseURL)
	return strings.TrimPrefix(ref, "/")
}
