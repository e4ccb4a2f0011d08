package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	inputs []*s3manager.UploadInput
	err    error
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, input *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &s3manager.UploadOutput{}, nil
}

func TestPutObjectUploadsAndReturnsURI(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{}
	store, err := NewWithUploader(up, "media-bucket")
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "media/12345_777.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	require.Equal(t, "s3://media-bucket/media/12345_777.jpg", uri)

	require.Len(t, up.inputs, 1)
	require.Equal(t, "media-bucket", aws.StringValue(up.inputs[0].Bucket))
	require.Equal(t, "media/12345_777.jpg", aws.StringValue(up.inputs[0].Key))
	require.Equal(t, "image/jpeg", aws.StringValue(up.inputs[0].ContentType))
	body, err := io.ReadAll(up.inputs[0].Body)
	require.NoError(t, err)
	require.Equal(t, "jpeg-bytes", string(body))
}

func TestPutObjectRequiresKey(t *testing.T) {
	t.Parallel()

	store, err := NewWithUploader(&fakeUploader{}, "media-bucket")
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "  ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestPutObjectUploadFailure(t *testing.T) {
	t.Parallel()

	store, err := NewWithUploader(&fakeUploader{err: fmt.Errorf("boom")}, "media-bucket")
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "media/a.jpg", "image/jpeg", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "upload object")
}
