// Package s3 reads boundary sources from and publishes tour projects to
// S3-compatible object storage.
package s3

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
)

var InvalidURIErr = errors.New("invalid object URI")

// ObjectStorage is a S3-compatible storage interface.
type ObjectStorage interface {
	Download(ctx context.Context, w io.WriterAt, URI string) (int64, error)
	Upload(ctx context.Context, r io.Reader, URI string) (string, error)
}

// ObjectStorageImpl is our implementation of the ObjectStorage interface.
type ObjectStorageImpl struct {
	client     s3iface.S3API
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

var _ ObjectStorage = (*ObjectStorageImpl)(nil)

// New returns a pointer to a new ObjectStorageImpl.
func New(sess *session.Session) *ObjectStorageImpl {
	client := s3.New(sess)
	return &ObjectStorageImpl{
		client:     client,
		downloader: s3manager.NewDownloaderWithClient(client),
		uploader:   s3manager.NewUploaderWithClient(client),
	}
}

// Download writes the contents of a remote file into the given writer.
func (s *ObjectStorageImpl) Download(ctx context.Context, w io.WriterAt, URI string) (n int64, err error) {
	bucket, key, err := getBucketAndKey(URI)
	if err != nil {
		return -1, err
	}
	req := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	return s.downloader.DownloadWithContext(ctx, w, req)
}

// Upload stores the contents of the reader under the given URI and returns
// the location reported by the service.
func (s *ObjectStorageImpl) Upload(ctx context.Context, r io.Reader, URI string) (string, error) {
	bucket, key, err := getBucketAndKey(URI)
	if err != nil {
		return "", err
	}
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", errors.Wrapf(err, "cannot upload %s", URI)
	}
	return out.Location, nil
}

// Join appends a slash-separated object name to a prefix URI such as
// s3://bucket/tours.
func Join(prefix string, elem ...string) string {
	parts := append([]string{strings.TrimSuffix(prefix, "/")}, elem...)
	return strings.Join(parts, "/")
}

func getBucketAndKey(URI string) (bucket string, key string, err error) {
	u, err := url.Parse(URI)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Hostname() == "" {
		return "", "", errors.Wrap(InvalidURIErr, URI)
	}
	return u.Hostname(), strings.TrimPrefix(u.Path, "/"), nil
}
