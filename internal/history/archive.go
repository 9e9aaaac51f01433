package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ArchiveConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archive mirrors soft-delete snapshots to an S3-compatible bucket so undo
// history survives process restarts. Consumption is tracked with marker
// objects under consumed/.
type Archive struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

func NewArchive(cfg ArchiveConfig) (*Archive, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &Archive{client: client, bucket: bucket, region: region}, nil
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	a.initOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.initErr = err
			return
		}
		if exists {
			return
		}
		a.initErr = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region})
	})
	return a.initErr
}

func snapshotKey(historyID string) string { return "snapshots/" + historyID + ".json" }
func consumedKey(historyID string) string { return "consumed/" + historyID }

func (a *Archive) Put(ctx context.Context, snap Snapshot) error {
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, a.bucket, snapshotKey(snap.ID),
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

func (a *Archive) Get(ctx context.Context, historyID string) (Snapshot, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return Snapshot{}, err
	}
	obj, err := a.client.GetObject(ctx, a.bucket, snapshotKey(historyID), minio.GetObjectOptions{})
	if err != nil {
		return Snapshot{}, err
	}
	defer obj.Close()
	body, err := io.ReadAll(obj)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (a *Archive) IsConsumed(ctx context.Context, historyID string) (bool, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return false, err
	}
	_, err := a.client.StatObject(ctx, a.bucket, consumedKey(historyID), minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *Archive) MarkConsumed(ctx context.Context, historyID string) error {
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := a.client.PutObject(ctx, a.bucket, consumedKey(historyID),
		bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	return err
}
