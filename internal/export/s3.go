package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// CursorPlaceholder in an S3 key is replaced by the snapshot's change cursor,
// so each snapshot lands in its own object.
const CursorPlaceholder = "{cursor}"

// objectPutter is the subset of *s3.Client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options locate the snapshot object.
type S3Options struct {
	Bucket string
	Key    string // may contain CursorPlaceholder
	Region string
	// Endpoint selects an S3-compatible service (MinIO and the like) and
	// switches to path-style addressing.
	Endpoint string
}

// S3Destination uploads snapshots to a bucket. The snapshot cursor is stored
// as object metadata so readers can resume the stream without parsing the body.
type S3Destination struct {
	api    objectPutter
	bucket string
	key    string
}

// NewS3Destination loads the default AWS credential chain for opts.Region.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{api: client, bucket: opts.Bucket, key: opts.Key}, nil
}

func (d *S3Destination) Name() string {
	return fmt.Sprintf("s3://%s/%s", d.bucket, d.key)
}

func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	cursor, err := snapshotCursor(data)
	if err != nil {
		return err
	}
	c := strconv.FormatInt(cursor, 10)
	key := strings.ReplaceAll(d.key, CursorPlaceholder, c)

	_, err = d.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
		Metadata:    map[string]string{"calfeed-cursor": c},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// snapshotCursor reads the cursor from the header line of a snapshot.
func snapshotCursor(data []byte) (int64, error) {
	line, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()
	var h header
	if err := json.Unmarshal(line, &h); err != nil || h.Type != "header" {
		return 0, fmt.Errorf("snapshot has no header line")
	}
	return h.Cursor, nil
}
