package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/store"
)

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte(`{"id":"r1"}`)
	h1, err := s.Put(ctx, data)
	require.NoError(t, err)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, h1)

	h2, err := s.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	got, err := s.Get(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := s.Exists(ctx, h1)
	require.NoError(t, err)
	assert.True(t, ok)

	missing := "sha256:" + string(bytes.Repeat([]byte("0"), 64))
	_, err = s.Get(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = s.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "md5:abc")
	assert.Error(t, err)
	_, err = s.Get(ctx, "sha256:../../etc/passwd")
	assert.Error(t, err)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = b
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := &S3Store{client: fake, bucket: "b", prefix: "approvals/"}
	ctx := context.Background()

	h, err := s.Put(ctx, []byte("x"))
	require.NoError(t, err)
	_, err = s.Put(ctx, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.puts)

	raw, err := parseHash(h)
	require.NoError(t, err)
	assert.Contains(t, fake.objects, "approvals/"+raw+".json")

	got, err := s.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	other, _ := contentHash([]byte("y"))
	_, err = s.Get(ctx, other)
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err := s.Exists(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(context.Background(), Config{Backend: BackendLocal, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = NewStore(context.Background(), Config{Backend: "tape"})
	assert.Error(t, err)
	_, err = NewStore(context.Background(), Config{Backend: BackendS3})
	assert.Error(t, err)
}

func TestExportApplied(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	for _, r := range []contracts.ApprovalRequest{
		{ID: "b", Kind: contracts.KindGrowth, State: contracts.ApprovalApplied, CreatedAt: at, UpdatedAt: at},
		{ID: "a", Kind: contracts.KindGrowth, State: contracts.ApprovalApplied, CreatedAt: at, UpdatedAt: at},
		{ID: "c", Kind: contracts.KindGrowth, State: contracts.ApprovalApproved, CreatedAt: at, UpdatedAt: at},
	} {
		require.NoError(t, ms.Create(ctx, &r))
	}

	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exp := NewExporter(fs).WithClock(func() time.Time { return at })

	m1, err := exp.ExportApplied(ctx, ms)
	require.NoError(t, err)
	require.Len(t, m1.Entries, 2)
	assert.Equal(t, "a", m1.Entries[0].RequestID)
	assert.Equal(t, "b", m1.Entries[1].RequestID)

	body, err := fs.Get(ctx, m1.Entries[0].Hash)
	require.NoError(t, err)
	var got contracts.ApprovalRequest
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "a", got.ID)

	m2, err := exp.ExportApplied(ctx, ms)
	require.NoError(t, err)
	assert.Equal(t, m1.Hash, m2.Hash)
}
