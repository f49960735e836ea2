package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperjump/kilimo/internal/models"
)

// Source loads a dataset snapshot.
type Source interface {
	// Name identifies the source; it seeds record IDs.
	Name() string
	Load(ctx context.Context) (*Dataset, error)
}

// FileSource reads an xlsx or csv file from local disk.
type FileSource struct {
	Path    string
	Format  string
	Sheet   string
	Columns Columns
}

// Name returns the file path.
func (s *FileSource) Name() string { return s.Path }

// Load reads and parses the file. Returns ErrSourceNotFound when it does not exist.
func (s *FileSource) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.Path)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(s.Path, content, s.Format, s.Sheet, s.Columns)
}

// ObjectConfig locates a dataset object in S3-compatible storage.
type ObjectConfig struct {
	Endpoint        string
	Bucket          string
	Key             string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// FetchFunc returns the object bytes for bucket/key.
type FetchFunc func(ctx context.Context, bucket, key string) ([]byte, error)

// ObjectSource reads the dataset from an S3 or MinIO bucket.
type ObjectSource struct {
	cfg     ObjectConfig
	format  string
	sheet   string
	columns Columns
	fetch   FetchFunc
}

// NewObjectSource creates a MinIO client for cfg. Empty credentials fall back to
// the AWS_* and then MINIO_* environment variables.
func NewObjectSource(cfg ObjectConfig, format, sheet string, cols Columns) (*ObjectSource, error) {
	creds := credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	if cfg.AccessKeyID == "" {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
		})
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return NewObjectSourceWithFetch(cfg, format, sheet, cols, minioFetch(client)), nil
}

// NewObjectSourceWithFetch builds an ObjectSource over a custom fetch function.
func NewObjectSourceWithFetch(cfg ObjectConfig, format, sheet string, cols Columns, fetch FetchFunc) *ObjectSource {
	return &ObjectSource{cfg: cfg, format: format, sheet: sheet, columns: cols, fetch: fetch}
}

func minioFetch(client *minio.Client) FetchFunc {
	return func(ctx context.Context, bucket, key string) ([]byte, error) {
		obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, objectErr(err)
		}
		defer obj.Close()
		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, objectErr(err)
		}
		return data, nil
	}
}

func objectErr(err error) error {
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" || errResp.Code == "NotFound" {
		return ErrSourceNotFound
	}
	return err
}

// Name returns the s3:// URL of the object.
func (s *ObjectSource) Name() string {
	return "s3://" + s.cfg.Bucket + "/" + s.cfg.Key
}

// Load downloads and parses the object.
func (s *ObjectSource) Load(ctx context.Context) (*Dataset, error) {
	data, err := s.fetch(ctx, s.cfg.Bucket, s.cfg.Key)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.Name())
		}
		return nil, fmt.Errorf("fetch %s: %w", s.Name(), err)
	}
	format := s.format
	if format == "" {
		format = FormatFromName(s.cfg.Key)
	}
	return Parse(s.Name(), data, format, s.sheet, s.columns)
}

// RecordStore returns previously imported records.
type RecordStore interface {
	ListRecords(ctx context.Context, source string) ([]*models.Record, models.Capabilities, error)
}

// StoreSource serves the records last imported for a source name.
type StoreSource struct {
	store  RecordStore
	source string
}

// NewStoreSource returns a source reading the import of source from store.
func NewStoreSource(store RecordStore, source string) *StoreSource {
	return &StoreSource{store: store, source: source}
}

// Name returns the imported source name.
func (s *StoreSource) Name() string { return s.source }

// Load reads the imported records. An import with no rows is ErrSourceNotFound.
func (s *StoreSource) Load(ctx context.Context) (*Dataset, error) {
	records, caps, err := s.store.ListRecords(ctx, s.source)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no imported records for %s", ErrSourceNotFound, s.source)
	}
	return New(s.source, records, caps), nil
}
