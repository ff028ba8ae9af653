package storage

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(t.TempDir(), 2*time.Second)
	require.NoError(t, err)
	return svc
}

func multipartHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("img_file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(1 << 20)
	require.NoError(t, err)
	return form.File["img_file"][0]
}

func TestSaveUpload(t *testing.T) {
	svc := newTestService(t)

	path, err := svc.SaveUpload(multipartHeader(t, "face.PNG", []byte("png-bytes")))

	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, svc.Remove(path))
	assert.NoFileExists(t, path)
	assert.NoError(t, svc.Remove(path))
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/face":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("image"))
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	svc := newTestService(t)

	t.Run("image", func(t *testing.T) {
		path, err := svc.Download(context.Background(), server.URL+"/face")
		require.NoError(t, err)
		assert.Equal(t, ".png", filepath.Ext(path))
		assert.FileExists(t, path)
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := svc.Download(context.Background(), server.URL+"/page.html")
		assert.ErrorIs(t, err, ErrNotImage)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := svc.Download(context.Background(), server.URL+"/nope.jpg")
		assert.Error(t, err)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := svc.Download(context.Background(), "://bad")
		assert.Error(t, err)
	})
}

func TestCleanupOlderThan(t *testing.T) {
	svc := newTestService(t)

	old := filepath.Join(svc.downloadDir, "old.jpg")
	fresh := filepath.Join(svc.downloadDir, "fresh.jpg")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := svc.CleanupOlderThan(time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}
