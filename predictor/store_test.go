package predictor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	getErr  error
	gets    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.gets = append(f.gets, key)
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maccs_rf.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))
	store := NewFileStore(dir)

	rc, err := store.Open(context.Background(), "maccs_rf.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "{}", string(data))

	for _, key := range []string{"absent.json", "../maccs_rf.json", "/etc/passwd", ""} {
		_, err := store.Open(context.Background(), key)
		assert.ErrorIs(t, err, ErrArtifactNotFound, key)
	}

	keys, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"maccs_rf.json"}, keys)

	keys, err = NewFileStore(filepath.Join(dir, "nope")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestS3StoreOpen(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"amr/maccs_rf.json": `{"format":"forest"}`}}
	store := NewS3StoreWithClient(client, "bucket", "/amr/")

	rc, err := store.Open(context.Background(), "maccs_rf.json")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, `{"format":"forest"}`, string(data))
	assert.Equal(t, []string{"amr/maccs_rf.json"}, client.gets)

	_, err = store.Open(context.Background(), "erg_rf.json")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestS3StoreErrors(t *testing.T) {
	client := &fakeS3{getErr: &smithy.GenericAPIError{Code: "NotFound"}}
	store := NewS3StoreWithClient(client, "bucket", "")
	_, err := store.Open(context.Background(), "maccs_rf.json")
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	client.getErr = errors.New("connection reset")
	_, err = store.Open(context.Background(), "maccs_rf.json")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrArtifactNotFound)
}

func TestS3StoreList(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"amr/maccs_rf.json":       "{}",
		"amr/ecfp4_rf.json":       "{}",
		"amr/ecfp4_rf.onnx":       "",
		"amr/archive/erg_rf.json": "{}",
		"other/mhfp6_rf.json":     "{}",
	}}
	keys, err := NewS3StoreWithClient(client, "bucket", "amr").List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ecfp4_rf.json", "maccs_rf.json"}, keys)
}

func TestLoaderOverS3(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "maccs_rf.json", ringForest())
	data, err := os.ReadFile(filepath.Join(dir, "maccs_rf.json"))
	require.NoError(t, err)

	client := &fakeS3{objects: map[string]string{"maccs_rf.json": string(data)}}
	p := newTestPipeline(t, NewLoader(NewS3StoreWithClient(client, "bucket", "")))
	results, dropped, err := p.Run(context.Background(), []string{"c1ccccc1"}, MACCS, "rf")
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, results, 1)
	assert.Equal(t, Label("active"), results[0].Class)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(context.Background(), ArtifactConfig{Backend: BackendFile, Dir: "models"})
	require.NoError(t, err)
	assert.Equal(t, "models", store.(*FileStore).Root())

	_, err = NewStore(context.Background(), ArtifactConfig{Backend: "ftp"})
	assert.Error(t, err)
	_, err = NewStore(context.Background(), ArtifactConfig{Backend: BackendS3})
	assert.Error(t, err)
}
