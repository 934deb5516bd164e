package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryArchive(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryArchive()

	require.NoError(t, a.PutJSON(ctx, OrphanPrefix+"b.json", map[string]any{"items": []string{"x"}}))
	require.NoError(t, a.PutJSON(ctx, OrphanPrefix+"a.json", map[string]any{"items": []string{"y"}}))
	require.NoError(t, a.PutJSON(ctx, ReceiptPrefix+"1.json", map[string]any{"id": 1}))

	objs, err := a.ListObjects(ctx, OrphanPrefix)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, OrphanPrefix+"a.json", objs[0].Key)

	body, ok := a.Get(ReceiptPrefix + "1.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":1}`, string(body))

	url, err := a.GetObjectURL(ctx, ReceiptPrefix+"1.json", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "memory://receipts/1.json", url)

	_, err = a.GetObjectURL(ctx, "missing", time.Minute)
	assert.Error(t, err)
}

func TestNewS3ArchiveRequiresBucket(t *testing.T) {
	_, err := NewS3Archive(s3.New(s3.Options{Region: "us-east-1"}), "", "x")
	assert.Error(t, err)
}

func TestS3ArchivePutJSON(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		gotPath = r.URL.Path
		gotBody = buf.String()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
	})
	a, err := NewS3Archive(client, "bucket", "/mail-market/")
	require.NoError(t, err)

	require.NoError(t, a.PutJSON(context.Background(), OrphanPrefix+"1.json", map[string]int{"n": 1}))
	assert.Equal(t, "/bucket/mail-market/orphans/1.json", gotPath)
	assert.Contains(t, gotBody, `{"n":1}`)
}
