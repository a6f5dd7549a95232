package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPart struct {
	contentType string
	data        []byte
}

func newBody(t *testing.T, parts ...testPart) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="clip.mp4"`)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.Boundary()
}

func newReader(t *testing.T, parts ...testPart) *multipart.Reader {
	body, boundary := newBody(t, parts...)
	return multipart.NewReader(body, boundary)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngest(t *testing.T) {
	tests := []struct {
		parts       []testPart
		maxSize     int64
		size        int64
		expectedErr error
	}{
		{[]testPart{{"video/mp4", []byte("hello")}}, 100, 5, nil},
		{[]testPart{{"video/quicktime; charset=binary", []byte("hello")}}, 100, 5, nil},
		{[]testPart{{"VIDEO/MP4", []byte("hello")}}, 100, 5, nil},
		{[]testPart{{"video/mp4", bytes.Repeat([]byte("a"), 60)}, {"video/webm", bytes.Repeat([]byte("b"), 40)}}, 100, 100, nil},
		{[]testPart{{"video/mp4", bytes.Repeat([]byte("a"), 60)}, {"video/webm", bytes.Repeat([]byte("b"), 41)}}, 100, 0, ErrPayloadTooLarge},
		{[]testPart{{"video/mp4", bytes.Repeat([]byte("a"), 101)}}, 100, 0, ErrPayloadTooLarge},
		{[]testPart{{"", []byte("hello")}}, 100, 0, ErrMissingContentType},
		{[]testPart{{"image/png", []byte("hello")}}, 100, 0, ErrUnsupportedMediaType},
		{[]testPart{{"videos", []byte("hello")}}, 100, 0, ErrUnsupportedMediaType},
		{[]testPart{{"video/mp4", []byte("hello")}, {"application/json", []byte("{}")}}, 100, 0, ErrUnsupportedMediaType},
		{nil, 100, 0, ErrEmptyUpload},
	}
	for i, tt := range tests {
		dir := t.TempDir()
		asset, err := New(dir, tt.maxSize).Ingest(context.Background(), newReader(t, tt.parts...))
		if tt.expectedErr != nil {
			assert.ErrorIs(t, err, tt.expectedErr, "case %d", i)
			assert.Nil(t, asset)
			assertEmptyDir(t, dir)
			continue
		}
		require.NoError(t, err, "case %d", i)
		assert.Equal(t, tt.size, asset.Size())
		data, err := asset.Bytes()
		require.NoError(t, err)
		assert.Len(t, data, int(tt.size))
		require.NoError(t, asset.Close())
		require.NoError(t, asset.Close())
		assertEmptyDir(t, dir)
	}
}

func TestIngestConcatenatesParts(t *testing.T) {
	asset, err := New(t.TempDir(), 0).Ingest(context.Background(), newReader(t,
		testPart{"video/mp4", []byte("abc")},
		testPart{"video/mp4", []byte("def")},
	))
	require.NoError(t, err)
	defer asset.Close()
	data, err := asset.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
	assert.Regexp(t, `^video-\d+$`, asset.Name())
}

func TestIngestExactlyCeiling(t *testing.T) {
	dir := t.TempDir()
	asset, err := New(dir, 0).Ingest(context.Background(), newReader(t,
		testPart{"video/mp4", bytes.Repeat([]byte{1}, int(MaxUploadSize))},
	))
	require.NoError(t, err)
	defer asset.Close()
	assert.Equal(t, MaxUploadSize, asset.Size())
	info, err := os.Stat(asset.Path())
	require.NoError(t, err)
	assert.Equal(t, MaxUploadSize, info.Size())
}

func TestIngestCeilingPlusOne(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, 0).Ingest(context.Background(), newReader(t,
		testPart{"video/mp4", bytes.Repeat([]byte{1}, int(MaxUploadSize)+1)},
	))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assertEmptyDir(t, dir)
}

func TestIngestStopsReadingOversizedStream(t *testing.T) {
	const total = 15 << 20
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="big.mp4"`)
		h.Set("Content-Type", "video/mp4")
		part, err := w.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		chunk := bytes.Repeat([]byte{7}, 1<<20)
		for i := 0; i < total>>20; i++ {
			if _, err := part.Write(chunk); err != nil {
				return
			}
		}
		pw.CloseWithError(w.Close())
	}()

	body := &countingReader{r: pr}
	dir := t.TempDir()
	_, err := New(dir, 0).Ingest(context.Background(), multipart.NewReader(body, w.Boundary()))
	pr.CloseWithError(errors.New("done"))

	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Less(t, body.n, MaxUploadSize+2*chunkSize)
	assertEmptyDir(t, dir)
}

func TestIngestRejectsWithoutReadingPart(t *testing.T) {
	data := bytes.Repeat([]byte{9}, 1<<20)
	buf, boundary := newBody(t, testPart{"image/png", data})
	body := &countingReader{r: buf}
	_, err := New(t.TempDir(), 0).Ingest(context.Background(), multipart.NewReader(body, boundary))
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
	assert.Less(t, body.n, int64(64<<10))
}

func TestIngestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	_, err := New(dir, 0).Ingest(ctx, newReader(t, testPart{"video/mp4", []byte("hello")}))
	assert.ErrorIs(t, err, ErrTransport)
	assertEmptyDir(t, dir)
}

func TestIngestBrokenStream(t *testing.T) {
	buf, boundary := newBody(t, testPart{"video/mp4", bytes.Repeat([]byte{1}, 4096)})
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()/2])
	dir := t.TempDir()
	_, err := New(dir, 0).Ingest(context.Background(), multipart.NewReader(truncated, boundary))
	assert.ErrorIs(t, err, ErrTransport)
	assertEmptyDir(t, dir)
}

func TestIngestMalformedBody(t *testing.T) {
	part := "--XYZ\r\nContent-Disposition: form-data; name=\"file\"; filename=\"clip.mp4\"\r\nContent-Type: video/mp4\r\n\r\n"
	tests := []struct {
		body        string
		expectedErr error
	}{
		{"", ErrMalformedUpload},
		{"garbage without boundary", ErrMalformedUpload},
		{"--XYZ--\r\n", ErrEmptyUpload},
		{part + "abcdef", ErrTransport},
		{part + "abcdef\r\n--XYZ\r\nContent-Type: vid", ErrTransport},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		_, err := New(dir, 0).Ingest(context.Background(), multipart.NewReader(bytes.NewBufferString(tt.body), "XYZ"))
		assert.ErrorIs(t, err, tt.expectedErr, tt.body)
		assertEmptyDir(t, dir)
	}
}

func TestIngestMaxBytesReader(t *testing.T) {
	buf, boundary := newBody(t, testPart{"video/mp4", bytes.Repeat([]byte{1}, 4096)})
	w := httptest.NewRecorder()
	body := http.MaxBytesReader(w, io.NopCloser(buf), 1024)
	_, err := New(t.TempDir(), 0).Ingest(context.Background(), multipart.NewReader(body, boundary))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestAssetCloseNil(t *testing.T) {
	var a *Asset
	assert.NoError(t, a.Close())
}
