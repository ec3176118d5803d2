package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"

	"luxuryestates/pkg/config"
)

// Object 是一个已上传文件的公开地址与存储标识
type Object struct {
	URL       string `json:"url"`
	StorageID string `json:"storageId"`
}

var ErrNotConfigured = errors.New("storage: SUPABASE_URL, SUPABASE_KEY or BUCKET_NAME is not set")

// SupabaseStore 把图片存入 Supabase Storage 的一个 bucket
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
}

func NewSupabaseStore(cfg config.StorageConfig) (*SupabaseStore, error) {
	if cfg.URL == "" || cfg.Key == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	client := storage_go.NewClient(strings.TrimRight(cfg.URL, "/")+"/storage/v1", cfg.Key, nil)
	return &SupabaseStore{client: client, bucket: cfg.Bucket}, nil
}

// Upload 以随机文件名写入 folder，保留原扩展名
func (s *SupabaseStore) Upload(ctx context.Context, folder, filename, contentType string, body io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	objectPath := ObjectPath(folder, filename)
	_, err := s.client.UploadFile(s.bucket, objectPath, body, storage_go.FileOptions{ContentType: &contentType})
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}

	resp := s.client.GetPublicUrl(s.bucket, objectPath)
	return Object{URL: resp.SignedURL, StorageID: objectPath}, nil
}

// Destroy 删除对象；空 storageID 视为无操作
func (s *SupabaseStore) Destroy(ctx context.Context, storageID string) error {
	if storageID == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{storageID}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", storageID, err)
	}
	return nil
}

// Disabled 在未配置存储时使用，所有操作返回 ErrNotConfigured
type Disabled struct{}

func (Disabled) Upload(context.Context, string, string, string, io.Reader) (Object, error) {
	return Object{}, ErrNotConfigured
}

func (Disabled) Destroy(context.Context, string) error {
	return ErrNotConfigured
}

// ObjectPath 生成 <folder>/<uuid><ext>
func ObjectPath(folder, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(folder, uuid.NewString()+ext)
}
