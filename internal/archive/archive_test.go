package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_sitegen/internal/model"
	"go_sitegen/internal/vfs"
)

func sampleTree() *vfs.Tree {
	tree := vfs.New()
	tree.AddFile("package.json", `{"name":"acme"}`, model.FileTypeConfig)
	tree.AddFile("src/app/page.tsx", "export default function Page() {}", model.FileTypePage)
	return tree
}

func TestZip_RoundTripInOrder(t *testing.T) {
	body, err := ZipBytes(sampleTree())
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "package.json", zr.File[0].Name)
	assert.Equal(t, "src/app/page.tsx", zr.File[1].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "export default function Page() {}", string(content))
}

func TestZip_Deterministic(t *testing.T) {
	first, err := ZipBytes(sampleTree())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ZipBytes(sampleTree())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

type fakeUploader struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(input.Body)
	f.inputs = append(f.inputs, input)
	f.bodies = append(f.bodies, body)
	return &manager.UploadOutput{Location: "s3://" + aws.ToString(input.Bucket) + "/" + aws.ToString(input.Key)}, nil
}

func TestS3Store_PutTree(t *testing.T) {
	up := &fakeUploader{}
	store := NewS3StoreWithUploader(up, "archives", "versions")

	loc, err := store.PutTree(context.Background(), "acme", 3, sampleTree())
	require.NoError(t, err)
	assert.Equal(t, "s3://archives/versions/acme/v3.zip", loc)

	require.Len(t, up.inputs, 1)
	assert.Equal(t, "application/zip", aws.ToString(up.inputs[0].ContentType))

	want, err := ZipBytes(sampleTree())
	require.NoError(t, err)
	assert.Equal(t, want, up.bodies[0])
}

func TestS3Store_PutError(t *testing.T) {
	store := NewS3StoreWithUploader(&fakeUploader{err: errors.New("access denied")}, "b", "")

	_, err := store.Put(context.Background(), "k.zip", []byte("x"))
	assert.ErrorContains(t, err, "access denied")
	assert.Equal(t, "acme/v1.zip", store.Key("acme", 1))
}
