package s3archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/heartmarshall/d2-itemdb-updater/pkg/ctxutil"
)

type mockUploader struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (m *mockUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	m.bucket = aws.ToString(in.Bucket)
	m.key = aws.ToString(in.Key)
	m.contentType = aws.ToString(in.ContentType)
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.body = b
	if m.err != nil {
		return nil, m.err
	}
	return &manager.UploadOutput{}, nil
}

func TestArchive_Save_KeyedByRun(t *testing.T) {
	t.Parallel()

	up := &mockUploader{}
	a := newArchive(up, "payloads", "d2-itemdb")

	runID := uuid.New()
	ctx := ctxutil.WithRunID(context.Background(), runID)

	if err := a.Save(ctx, "itemDefinition_eng.json", []byte(`{"1":{}}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if up.bucket != "payloads" {
		t.Errorf("bucket = %q", up.bucket)
	}
	if want := "d2-itemdb/" + runID.String() + "/itemDefinition_eng.json"; up.key != want {
		t.Errorf("key = %q, want %q", up.key, want)
	}
	if up.contentType != "application/json" {
		t.Errorf("content type = %q", up.contentType)
	}
	if string(up.body) != `{"1":{}}` {
		t.Errorf("body = %s", up.body)
	}
}

func TestArchive_Key_WithoutRun(t *testing.T) {
	t.Parallel()

	a := newArchive(&mockUploader{}, "b", "")
	if got := a.Key(context.Background(), "manifest.json"); got != "adhoc/manifest.json" {
		t.Errorf("Key = %q, want adhoc/manifest.json", got)
	}
}

func TestArchive_Save_Error(t *testing.T) {
	t.Parallel()

	errDenied := errors.New("access denied")
	a := newArchive(&mockUploader{err: errDenied}, "b", "p")

	err := a.Save(context.Background(), "manifest.json", []byte("{}"))
	if !errors.Is(err, errDenied) {
		t.Fatalf("expected wrapped upload error, got %v", err)
	}
}
