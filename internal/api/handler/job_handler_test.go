package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperreel/backend/internal/api/dto"
	"github.com/paperreel/backend/internal/job"
	"github.com/paperreel/backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubPublisher struct {
	published [][]byte
	failWith  error
	connected bool
}

func (p *stubPublisher) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.published = append(p.published, body)
	return nil
}

func (p *stubPublisher) IsConnected() bool {
	return p.connected
}

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(context.Context) error {
	return p.err
}

type testEnv struct {
	router    *gin.Engine
	store     *store.Memory
	publisher *stubPublisher
	pinger    *stubPinger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memory := store.NewMemory()
	publisher := &stubPublisher{connected: true}
	pinger := &stubPinger{}

	h := NewJobHandler(&Dependencies{
		Logger:    logger,
		Service:   job.NewService(memory, logger),
		Publisher: publisher,
		DB:        pinger,
	})

	r := gin.New()
	r.POST("/api/v1/jobs", h.SubmitJob)
	r.GET("/api/v1/jobs", h.ListJobs)
	r.GET("/api/v1/jobs/:job_id", h.GetJob)
	r.GET("/api/v1/stats", h.Stats)
	r.GET("/health", h.Health)

	return &testEnv{router: r, store: memory, publisher: publisher, pinger: pinger}
}

func (e *testEnv) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func (e *testEnv) submit(t *testing.T, paperRef string) dto.JobResponse {
	t.Helper()

	w := e.do(http.MethodPost, "/api/v1/jobs", jsonBody(t, dto.SubmitJobRequest{PaperRef: paperRef}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp dto.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSubmitJob(t *testing.T) {
	t.Run("creates job and enqueues message", func(t *testing.T) {
		env := newTestEnv(t)

		resp := env.submit(t, "arxiv:2401.12345")

		_, err := uuid.Parse(resp.JobID)
		assert.NoError(t, err)
		assert.Equal(t, "arxiv:2401.12345", resp.PaperRef)
		assert.Equal(t, "PENDING", resp.Status)
		assert.Equal(t, 0, resp.Progress)
		assert.Empty(t, resp.ResultURL)
		assert.Nil(t, resp.Error)

		require.Len(t, env.publisher.published, 1)
		var message struct {
			JobID string `json:"job_id"`
		}
		require.NoError(t, json.Unmarshal(env.publisher.published[0], &message))
		assert.Equal(t, resp.JobID, message.JobID)
	})

	t.Run("missing paper_ref", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodPost, "/api/v1/jobs", jsonBody(t, map[string]string{}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "paper_ref is required")
		assert.Empty(t, env.publisher.published)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodPost, "/api/v1/jobs", bytes.NewReader([]byte("not json")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, env.publisher.published)
	})

	t.Run("publish failure keeps job pending", func(t *testing.T) {
		env := newTestEnv(t)
		env.publisher.failWith = errors.New("broker unavailable")

		w := env.do(http.MethodPost, "/api/v1/jobs", jsonBody(t, dto.SubmitJobRequest{PaperRef: "arxiv:2401.12345"}))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body struct {
			Error string `json:"error"`
			JobID string `json:"job_id"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body.Error, "could not be enqueued")
		require.NotEmpty(t, body.JobID)

		// The record survives so the client can retry submission.
		stored, err := env.store.Get(context.Background(), body.JobID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusPending, stored.Status)
	})
}

func TestGetJob(t *testing.T) {
	t.Run("returns latest snapshot", func(t *testing.T) {
		env := newTestEnv(t)
		created := env.submit(t, "arxiv:2401.12345")

		_, err := env.store.Apply(context.Background(), created.JobID, job.ProgressEvent{Percent: 40})
		require.NoError(t, err)

		w := env.do(http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.JobResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, created.JobID, resp.JobID)
		assert.Equal(t, "RUNNING", resp.Status)
		assert.Equal(t, 40, resp.Progress)
	})

	t.Run("succeeded job carries result url only", func(t *testing.T) {
		env := newTestEnv(t)
		created := env.submit(t, "arxiv:2401.12345")

		_, err := env.store.Apply(context.Background(), created.JobID, job.SuccessEvent{ResultURL: "https://cdn.example.com/videos/final.mp4"})
		require.NoError(t, err)

		w := env.do(http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)

		require.Equal(t, http.StatusOK, w.Code)
		var raw map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
		assert.Equal(t, "SUCCEEDED", raw["status"])
		assert.Equal(t, float64(100), raw["progress"])
		assert.Equal(t, "https://cdn.example.com/videos/final.mp4", raw["result_url"])
		assert.NotContains(t, raw, "error")
	})

	t.Run("failed job carries error only", func(t *testing.T) {
		env := newTestEnv(t)
		created := env.submit(t, "arxiv:2401.12345")

		_, err := env.store.Apply(context.Background(), created.JobID, job.ProgressEvent{Percent: 45})
		require.NoError(t, err)
		_, err = env.store.Apply(context.Background(), created.JobID, job.FailureEvent{Kind: "audio_synthesis", Message: "voice service returned 500"})
		require.NoError(t, err)

		w := env.do(http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)

		require.Equal(t, http.StatusOK, w.Code)
		var raw map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
		assert.Equal(t, "FAILED", raw["status"])
		assert.Equal(t, float64(45), raw["progress"])
		assert.NotContains(t, raw, "result_url")

		errObj, ok := raw["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "audio_synthesis", errObj["kind"])
		assert.Equal(t, "voice service returned 500", errObj["message"])
	})

	t.Run("invalid job id format", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "job_id must be a valid UUID")
	})

	t.Run("unknown job id", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "job not found")
	})
}

func TestListJobs(t *testing.T) {
	t.Run("paginates with cursor", func(t *testing.T) {
		env := newTestEnv(t)

		submitted := make(map[string]bool, 5)
		for i := 0; i < 5; i++ {
			resp := env.submit(t, fmt.Sprintf("arxiv:2401.%05d", i+1))
			submitted[resp.JobID] = true
		}

		seen := make(map[string]bool)
		cursor := ""
		for page := 0; page < 10; page++ {
			target := "/api/v1/jobs?page_size=2"
			if cursor != "" {
				target += "&cursor=" + cursor
			}
			w := env.do(http.MethodGet, target, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var resp dto.ListJobsResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.LessOrEqual(t, len(resp.Jobs), 2)
			for _, item := range resp.Jobs {
				assert.False(t, seen[item.JobID], "job %s returned twice", item.JobID)
				seen[item.JobID] = true
			}
			if resp.NextCursor == "" {
				break
			}
			cursor = resp.NextCursor
		}

		assert.Equal(t, submitted, seen)
	})

	t.Run("filters by status", func(t *testing.T) {
		env := newTestEnv(t)

		first := env.submit(t, "arxiv:2401.00001")
		second := env.submit(t, "arxiv:2401.00002")

		_, err := env.store.Apply(context.Background(), second.JobID, job.ProgressEvent{Percent: 10})
		require.NoError(t, err)

		w := env.do(http.MethodGet, "/api/v1/jobs?status=PENDING", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Jobs, 1)
		assert.Equal(t, first.JobID, resp.Jobs[0].JobID)
	})

	t.Run("filters by paper ref", func(t *testing.T) {
		env := newTestEnv(t)

		target := env.submit(t, "doi:10.1000/xyz123")
		env.submit(t, "arxiv:2401.00001")

		w := env.do(http.MethodGet, "/api/v1/jobs?paper_ref=doi:10.1000/xyz123", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Jobs, 1)
		assert.Equal(t, target.JobID, resp.Jobs[0].JobID)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodGet, "/api/v1/jobs?status=SLEEPING", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid status filter")
	})

	t.Run("invalid cursor", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodGet, "/api/v1/jobs?cursor=%21%21%21", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid cursor")
	})

	t.Run("empty store returns empty page", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodGet, "/api/v1/jobs", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Jobs)
		assert.Empty(t, resp.NextCursor)
	})
}

func TestStats(t *testing.T) {
	t.Run("empty store reports zeroes", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodGet, "/api/v1/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.StatsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, map[string]int{
			"PENDING":   0,
			"RUNNING":   0,
			"SUCCEEDED": 0,
			"FAILED":    0,
		}, resp.Counts)
		assert.Equal(t, 0, resp.Total)
	})

	t.Run("counts jobs per status", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()

		env.submit(t, "arxiv:2401.00001")
		env.submit(t, "arxiv:2401.00002")

		running := env.submit(t, "arxiv:2401.00003")
		_, err := env.store.Apply(ctx, running.JobID, job.ProgressEvent{Percent: 20})
		require.NoError(t, err)

		succeeded := env.submit(t, "arxiv:2401.00004")
		_, err = env.store.Apply(ctx, succeeded.JobID, job.SuccessEvent{ResultURL: "https://cdn.example.com/v.mp4"})
		require.NoError(t, err)

		failed := env.submit(t, "arxiv:2401.00005")
		_, err = env.store.Apply(ctx, failed.JobID, job.FailureEvent{Kind: "paper_fetch", Message: "404 from arxiv"})
		require.NoError(t, err)

		w := env.do(http.MethodGet, "/api/v1/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.StatsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, map[string]int{
			"PENDING":   2,
			"RUNNING":   1,
			"SUCCEEDED": 1,
			"FAILED":    1,
		}, resp.Counts)
		assert.Equal(t, 5, resp.Total)
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "paperreel-api-service", body["service"])
		assert.Equal(t, "up", body["database"])
		assert.Equal(t, "up", body["queue"])
	})

	t.Run("database down", func(t *testing.T) {
		env := newTestEnv(t)
		env.pinger.err = errors.New("connection refused")

		w := env.do(http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "down", body["database"])
	})

	t.Run("queue down", func(t *testing.T) {
		env := newTestEnv(t)
		env.publisher.connected = false

		w := env.do(http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "down", body["queue"])
	})
}
