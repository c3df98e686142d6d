package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOBackend keeps artifacts in an object store. Object puts are
// atomic, so active swaps need no staging step. The bucket is created
// on first use when absent.
type MinIOBackend struct {
	client *minio.Client
	bucket string
}

func NewMinIOBackend(ctx context.Context, cfg MinIOConfig) (*MinIOBackend, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "ai-rules-artifacts"
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return &MinIOBackend{client: client, bucket: bucket}, nil
}

func (b *MinIOBackend) activeKey(ruleType string) string {
	return "rules/" + sanitizeName(ruleType) + ".json"
}

func (b *MinIOBackend) archiveKey(entry ArchiveEntry) string {
	return fmt.Sprintf("archive/%s/%s_%d.json", sanitizeName(entry.RuleType), sanitizeName(entry.Version), entry.ArchivedAt.UnixNano())
}

func (b *MinIOBackend) ReadActive(ctx context.Context, ruleType string) (Artifact, bool, error) {
	raw, found, err := b.getObject(ctx, b.activeKey(ruleType))
	if err != nil || !found {
		return Artifact{}, found, err
	}
	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return Artifact{}, false, fmt.Errorf("decode active %s: %w", ruleType, err)
	}
	return artifact, true, nil
}

func (b *MinIOBackend) WriteActive(ctx context.Context, artifact Artifact) error {
	raw, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	return b.putObject(ctx, b.activeKey(artifact.RuleType), raw)
}

func (b *MinIOBackend) WriteArchive(ctx context.Context, entry ArchiveEntry, content string) (string, error) {
	key := b.archiveKey(entry)
	entry.Location = key
	raw, err := json.Marshal(archiveFile{ArchiveEntry: entry, Content: content})
	if err != nil {
		return "", err
	}
	if err := b.putObject(ctx, key, raw); err != nil {
		return "", err
	}
	return key, nil
}

func (b *MinIOBackend) ReadArchive(ctx context.Context, entry ArchiveEntry) (string, error) {
	raw, found, err := b.getObject(ctx, entry.Location)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: archive object %s missing", ErrStoreUnavailable, entry.Location)
	}
	var file archiveFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return "", fmt.Errorf("decode archive %s: %w", entry.Location, err)
	}
	return file.Content, nil
}

func (b *MinIOBackend) ListArchives(ctx context.Context, ruleType string) ([]ArchiveEntry, error) {
	prefix := "archive/" + sanitizeName(ruleType) + "/"
	entries := make([]ArchiveEntry, 0, 16)
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, obj.Err)
		}
		raw, found, err := b.getObject(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		var file archiveFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("decode archive %s: %w", obj.Key, err)
		}
		entries = append(entries, file.ArchiveEntry)
	}
	return entries, nil
}

func (b *MinIOBackend) DeleteArchive(ctx context.Context, entry ArchiveEntry) error {
	if err := b.client.RemoveObject(ctx, b.bucket, entry.Location, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (b *MinIOBackend) ListRuleTypes(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: "rules/", Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, "rules/")
		if strings.HasSuffix(name, ".json") {
			seen[strings.TrimSuffix(name, ".json")] = true
		}
	}
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: "archive/"}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, obj.Err)
		}
		parts := strings.Split(strings.TrimPrefix(obj.Key, "archive/"), "/")
		if len(parts) > 0 && parts[0] != "" {
			seen[parts[0]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for rt := range seen {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out, nil
}

func (b *MinIOBackend) getObject(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer obj.Close()
	raw, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return raw, true, nil
}

func (b *MinIOBackend) putObject(ctx context.Context, key string, raw []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
