package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockS3Service struct {
	mock.Mock
}

func (m *MockS3Service) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	args := m.Called(ctx, key, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockS3Service) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockS3Service) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockS3Service) UploadFile(ctx context.Context, key string, contentType string, data []byte) error {
	args := m.Called(ctx, key, contentType, data)
	return args.Error(0)
}

func (m *MockS3Service) DeleteFile(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func readAll(t *testing.T, src Source, name string) string {
	t.Helper()
	rc, err := src.Open(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestDirPutAndOpen(t *testing.T) {
	dir := Dir(t.TempDir())

	p, err := dir.Put(context.Background(), "plots/fit.png", ContentTypePNG, []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(string(dir), "plots", "fit.png"), p)
	assert.Equal(t, "png", readAll(t, dir, "plots/fit.png"))

	_, err = dir.Open(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirAbsolutePath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "scan.dat")
	require.NoError(t, os.WriteFile(abs, []byte("1 2"), 0o644))

	assert.Equal(t, "1 2", readAll(t, Dir("/elsewhere"), abs))
}

func TestFiles(t *testing.T) {
	files := Files{"b.txt": []byte("b"), "a.txt": []byte("a")}

	assert.Equal(t, []string{"a.txt", "b.txt"}, files.Names())
	assert.Equal(t, "b", readAll(t, files, "b.txt"))

	_, err := files.Open(context.Background(), "c.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBucketUsesPrefix(t *testing.T) {
	s3 := new(MockS3Service)
	ctx := context.Background()
	b := Bucket{S3: s3, Prefix: "inputs/123"}

	s3.On("DownloadFile", ctx, "inputs/123/scan.dat").Return([]byte("0 1"), nil)
	s3.On("UploadFile", ctx, "inputs/123/fit.png", ContentTypePNG, []byte("png")).Return(nil)

	assert.Equal(t, "0 1", readAll(t, b, "scan.dat"))
	key, err := b.Put(ctx, "fit.png", ContentTypePNG, []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "inputs/123/fit.png", key)

	s3.AssertExpectations(t)
}

func TestValidateContentType(t *testing.T) {
	assert.NoError(t, validateContentType(ContentTypeTSV))
	assert.NoError(t, validateContentType(ContentTypeXLSX))
	assert.Error(t, validateContentType("audio/wav"))
}
