package storage

import (
	"context"
	"errors"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

// maxArtifactSize bounds a single artifact read; artifacts are JSON documents.
const maxArtifactSize = 8 << 20

type GCSArtifactStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSArtifactStore uses application default credentials unless
// credentialsFile is set.
func NewGCSArtifactStore(ctx context.Context, bucket, credentialsFile string) (*GCSArtifactStore, error) {
	const op = "GCSArtifactStore.New"

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to create storage client", err)
	}
	return &GCSArtifactStore{client: c, bucket: bucket}, nil
}

func (s *GCSArtifactStore) Close() error { return s.client.Close() }

func (s *GCSArtifactStore) Read(ctx context.Context, key string) ([]byte, error) {
	const op = "GCSArtifactStore.Read"

	bucket, object := SplitKey(s.bucket, key)
	if bucket == "" || object == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "artifact key has no bucket or object", nil)
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return nil, utils.E(utils.CodeNotFound, op, "artifact not found", utils.ErrNotFound)
	}
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to open artifact", err)
	}
	defer r.Close()

	b, err := io.ReadAll(io.LimitReader(r, maxArtifactSize))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read artifact", err)
	}
	return b, nil
}
