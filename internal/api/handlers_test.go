package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftone-io/halftone/internal/auth"
	"github.com/halftone-io/halftone/internal/images"
	"github.com/halftone-io/halftone/internal/processing"
	"github.com/halftone-io/halftone/internal/quota"
	"github.com/halftone-io/halftone/internal/storage"
	"github.com/halftone-io/halftone/internal/store"
)

type fakeBroker struct {
	mu       sync.Mutex
	enqueued int
}

func (b *fakeBroker) Enqueue(jobType string, payload any) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueued++
	return uuid.NewString(), nil
}

type testServer struct {
	handler http.Handler
	broker  *fakeBroker
	mem     *store.Memory
	token   string
	userID  uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mem := store.NewMemory()
	objects := storage.NewMemoryStorage()
	broker := &fakeBroker{}
	ledger := quota.NewLedger(mem.Quotas(), mem.Subscriptions())
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	imgSvc := images.NewService(mem.Images(), ledger, objects, 1<<20, 15*time.Minute)
	procSvc := processing.NewService(mem.Images(), mem.Tasks(), ledger, broker, objects, 15*time.Minute)

	srv := NewServer(imgSvc, procSvc, mem.Users(), ledger, tokens, 1<<20)
	ts := &testServer{handler: srv.Routes(), broker: broker, mem: mem}

	resp := ts.do(t, "POST", "/api/v1/users", "", jsonBody(t, map[string]string{
		"email":    "sam@example.com",
		"username": "sam",
	}), "application/json")
	require.Equal(t, http.StatusCreated, resp.Code)

	var body struct {
		ID    uuid.UUID `json:"id"`
		Token string    `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	ts.token = body.Token
	ts.userID = body.ID
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return &buf
}

func pngUpload(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for x := 0; x < 12; x++ {
		for y := 0; y < 12; y++ {
			img.Set(x, y, color.RGBA{R: 80, G: 90, B: 100, A: 255})
		}
	}
	var png bytes.Buffer
	require.NoError(t, imaging.Encode(&png, img, imaging.PNG))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(png.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func (ts *testServer) uploadImage(t *testing.T) uuid.UUID {
	t.Helper()
	body, contentType := pngUpload(t, "photo.png")
	resp := ts.do(t, "POST", "/api/v1/images", ts.token, body, contentType)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var img struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &img))
	return img.ID
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/v1/images", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.do(t, "GET", "/api/v1/images", "bogus-token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestUploadAndGetImage(t *testing.T) {
	ts := newTestServer(t)
	imageID := ts.uploadImage(t)

	resp := ts.do(t, "GET", "/api/v1/images/"+imageID.String(), ts.token, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var img struct {
		OriginalFilename string `json:"original_filename"`
		ContentType      string `json:"content_type"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &img))
	assert.Equal(t, "photo.png", img.OriginalFilename)
	assert.Equal(t, "image/png", img.ContentType)
}

func TestCreateTaskFlow(t *testing.T) {
	ts := newTestServer(t)
	imageID := ts.uploadImage(t)

	resp := ts.do(t, "POST", "/api/v1/tasks", ts.token, jsonBody(t, map[string]any{
		"image_id":          imageID,
		"resize_enabled":    true,
		"resize_percentage": 40,
	}), "application/json")
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	var task struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
		Config struct {
			ResizeEnabled    bool `json:"resize_enabled"`
			ResizePercentage int  `json:"resize_percentage"`
		} `json:"config"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &task))
	assert.Equal(t, "pending", task.Status)
	assert.True(t, task.Config.ResizeEnabled)
	assert.Equal(t, 40, task.Config.ResizePercentage)
	assert.Equal(t, 1, ts.broker.enqueued)

	resp = ts.do(t, "GET", "/api/v1/tasks/"+task.ID.String(), ts.token, nil, "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(t, "GET", "/api/v1/tasks", ts.token, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Tasks []json.RawMessage `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Len(t, list.Tasks, 1)
}

func TestCreateTaskInvalidPercentage(t *testing.T) {
	ts := newTestServer(t)
	imageID := ts.uploadImage(t)

	resp := ts.do(t, "POST", "/api/v1/tasks", ts.token, jsonBody(t, map[string]any{
		"image_id":          imageID,
		"resize_enabled":    true,
		"resize_percentage": 0,
	}), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "invalid_configuration", body.Error.Code)
}

func TestCreateTaskUnknownImage(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/v1/tasks", ts.token, jsonBody(t, map[string]any{
		"image_id":          uuid.New(),
		"grayscale_enabled": true,
	}), "application/json")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestQuotaExhaustionReturns429(t *testing.T) {
	ts := newTestServer(t)
	imageID := ts.uploadImage(t)

	// the upload consumed one unit already
	for i := 1; i < quota.DefaultDailyLimit; i++ {
		resp := ts.do(t, "POST", "/api/v1/tasks", ts.token, jsonBody(t, map[string]any{
			"image_id":          imageID,
			"grayscale_enabled": true,
		}), "application/json")
		require.Equal(t, http.StatusAccepted, resp.Code, "task %d: %s", i, resp.Body.String())
	}

	resp := ts.do(t, "POST", "/api/v1/tasks", ts.token, jsonBody(t, map[string]any{
		"image_id":          imageID,
		"grayscale_enabled": true,
	}), "application/json")
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "quota_exceeded", body.Error.Code)
}

func TestQuotaEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/v1/quota", ts.token, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Remaining int  `json:"remaining"`
		Unlimited bool `json:"unlimited"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, quota.DefaultDailyLimit, body.Remaining)
	assert.False(t, body.Unlimited)
}

func TestTaskResultNotReady(t *testing.T) {
	ts := newTestServer(t)
	imageID := ts.uploadImage(t)

	resp := ts.do(t, "POST", "/api/v1/tasks", ts.token, jsonBody(t, map[string]any{
		"image_id":          imageID,
		"grayscale_enabled": true,
	}), "application/json")
	require.Equal(t, http.StatusAccepted, resp.Code)

	var task struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &task))

	resp = ts.do(t, "GET", fmt.Sprintf("/api/v1/tasks/%s/result", task.ID), ts.token, nil, "")
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestDeleteImage(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	imageID := ts.uploadImage(t)

	resp := ts.do(t, "DELETE", "/api/v1/images/"+imageID.String(), ts.token, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	_, err := ts.mem.Images().GetByID(ctx, imageID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
