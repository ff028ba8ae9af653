package inference_client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"face-registry/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "face.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake-jpeg"), 0o644))
	return path
}

func TestInferSendsFormAndParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "m1", r.FormValue("model_name"))
		assert.Equal(t, "0.5", r.FormValue("face_det_thres"))
		assert.Equal(t, "0.1", r.FormValue("face_bbox_area_thres"))
		assert.Equal(t, "1", r.FormValue("face_count_thres"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "face.jpg", header.Filename)

		json.NewEncoder(w).Encode(models.InferenceResponse{
			Status:         0,
			FaceDetections: [][]float64{{1, 2, 3, 4, 0.9}},
			FaceFeats:      [][]float32{{0.1, 0.2}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	resp, err := client.Infer(context.Background(), Request{
		ImagePath:          writeImage(t),
		ModelName:          "m1",
		DetectionThreshold: 0.5,
		FaceAreaFraction:   0.1,
		FaceCountThreshold: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, resp.Status)
	assert.Len(t, resp.FaceDetections, 1)
	assert.Equal(t, []float32{0.1, 0.2}, resp.FaceFeats[0])
}

func TestInferHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).Infer(context.Background(), Request{ImagePath: writeImage(t)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestInferMissingFile(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:0", time.Second).Infer(context.Background(), Request{ImagePath: "/nope/missing.jpg"})
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL, time.Second).HealthCheck(context.Background()))
}
