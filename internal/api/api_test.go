package api

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xDracarys/lfs-builder/internal/config"
	"github.com/0xDracarys/lfs-builder/internal/container"
	"github.com/0xDracarys/lfs-builder/internal/db"
	"github.com/0xDracarys/lfs-builder/internal/engine"
	"github.com/0xDracarys/lfs-builder/internal/iso"
	"github.com/0xDracarys/lfs-builder/internal/jobs"
	"github.com/0xDracarys/lfs-builder/internal/models"
	"github.com/0xDracarys/lfs-builder/internal/persist"
)

type testServer struct {
	server *Server
	engine *engine.Engine
	config *config.Config
}

func newTestServer(t *testing.T, buildKey string) *testServer {
	t.Helper()

	dir := t.TempDir()

	database, err := db.NewDB(filepath.Join(dir, "builder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := &config.Config{
		ServerHost:       "127.0.0.1",
		ServerPort:       8080,
		OutputPath:       filepath.Join(dir, "output"),
		StagePath:        filepath.Join(dir, "stage"),
		ContainerRuntime: "sim",
		JobPollSeconds:   1,
		BuildKey:         buildKey,
		LogLevel:         "error",
	}

	bridge := persist.NewBridge(database, nil, nil)

	eng := engine.New(engine.Options{
		Steps: []models.BuildStep{
			{ID: "prepare", Name: "Prepare", Phase: models.PhaseInitialSetup, Status: models.StepStatusPending, Command: "echo prepare"},
			{ID: "configure-network", Name: "Configure network", Phase: models.PhaseSystemConfig, Status: models.StepStatusPending, RequiresInput: true},
			{ID: "finish", Name: "Finish", Phase: models.PhaseFinalSteps, Status: models.StepStatusPending, Command: "echo finish"},
		},
		Recorder: bridge,
	})

	runtime := &container.SimRuntime{
		AvailabilityChance: 1,
		FailureChance:      0,
		Rand:               rand.New(rand.NewSource(1)),
	}
	tracker := jobs.NewTracker()
	remote := iso.NewRemoteClient("", time.Second)
	local := iso.NewLocalGenerator(runtime, nil)
	metadata := iso.NewMetadataStore(filepath.Join(dir, "generated-isos.json"), nil)
	coordinator := iso.NewCoordinator(remote, local, runtime, tracker, metadata, 10*time.Millisecond, nil)

	return &testServer{
		server: NewServer(cfg, eng, bridge, coordinator, tracker, nil),
		engine: eng,
		config: cfg,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(recorder, req)
	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), out))
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestBuildKeyGuardsMutations(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	resp := ts.do(t, http.MethodPost, "/api/v1/build/reset", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.do(t, http.MethodPost, "/api/v1/build/reset", nil, map[string]string{"X-Build-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.do(t, http.MethodPost, "/api/v1/build/reset", nil, map[string]string{"X-Build-Key": "sekrit"})
	assert.Equal(t, http.StatusOK, resp.Code)

	// Reads stay open.
	resp = ts.do(t, http.MethodGet, "/api/v1/build", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestConfigEndpoints(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, http.MethodPost, "/api/v1/configs", map[string]string{
		"name":         "default",
		"target_disk":  "/dev/sdb1",
		"sources_path": "/mnt/lfs/sources",
		"scripts_path": "/opt/lfs/scripts",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created models.BuildConfig
	decode(t, resp, &created)
	require.NotEmpty(t, created.ID)

	resp = ts.do(t, http.MethodGet, "/api/v1/configs/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(t, http.MethodGet, "/api/v1/configs", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var configs []models.BuildConfig
	decode(t, resp, &configs)
	assert.Len(t, configs, 1)

	resp = ts.do(t, http.MethodDelete, "/api/v1/configs/"+created.ID, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.do(t, http.MethodGet, "/api/v1/configs/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestConfigValidation(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, http.MethodPost, "/api/v1/configs", map[string]string{"name": "incomplete"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestBuildFlowThroughAPI(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, http.MethodPost, "/api/v1/build/start", nil, nil)
	require.Equal(t, http.StatusAccepted, resp.Code)

	var started map[string]string
	decode(t, resp, &started)
	buildID := started["build_id"]
	require.NotEmpty(t, buildID)

	// A second start while running (or parked on input) is rejected.
	resp = ts.do(t, http.MethodPost, "/api/v1/build/start", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.Code)

	ts.engine.Wait()

	resp = ts.do(t, http.MethodGet, "/api/v1/build", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var view struct {
		State engine.State       `json:"state"`
		Steps []models.BuildStep `json:"steps"`
	}
	decode(t, resp, &view)
	require.NotNil(t, view.State.Input)
	assert.Equal(t, "configure-network", view.State.Input.StepID)

	resp = ts.do(t, http.MethodPost, "/api/v1/build/input", map[string]string{"value": "lfs-box"}, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	ts.engine.Wait()

	resp = ts.do(t, http.MethodGet, "/api/v1/build", nil, nil)
	// Reset the decode target: fields omitted from the response (omitempty)
	// would otherwise keep their values from the previous decode.
	view.State = engine.State{}
	view.Steps = nil
	decode(t, resp, &view)
	assert.Equal(t, 100, view.State.Progress)
	assert.Nil(t, view.State.Input)

	resp = ts.do(t, http.MethodGet, "/api/v1/build/logs", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "$ lfs-box")

	// The build record is queryable afterwards.
	resp = ts.do(t, http.MethodGet, "/api/v1/builds/"+buildID, nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var record models.BuildRecord
	decode(t, resp, &record)
	assert.Equal(t, models.BuildStatusCompleted, record.Status)

	resp = ts.do(t, http.MethodGet, "/api/v1/builds/"+buildID+"/steps", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var steps []models.StepRecord
	decode(t, resp, &steps)
	assert.Len(t, steps, 3)
}

func TestInputEndpointsWithoutPendingRequest(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, http.MethodPost, "/api/v1/build/input", map[string]string{"value": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.do(t, http.MethodPost, "/api/v1/build/input/skip", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIsoGenerationFallsBackLocally(t *testing.T) {
	ts := newTestServer(t, "")

	source := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(source, "lfs-release"), []byte("12.0\n"), 0644))

	resp := ts.do(t, http.MethodPost, "/api/iso/generate", map[string]any{
		"buildId":   "build-1",
		"sourceDir": source,
		"label":     "LFS_12",
	}, nil)
	require.Equal(t, http.StatusAccepted, resp.Code)

	var accepted struct {
		JobID  string           `json:"jobId"`
		Status models.JobStatus `json:"status"`
	}
	decode(t, resp, &accepted)
	assert.True(t, strings.HasPrefix(accepted.JobID, "local-"))

	require.Eventually(t, func() bool {
		statusResp := ts.do(t, http.MethodGet, "/api/iso/status/"+accepted.JobID, nil, nil)
		if statusResp.Code != http.StatusOK {
			return false
		}
		var body struct {
			Status models.JobStatus `json:"status"`
		}
		if err := json.Unmarshal(statusResp.Body.Bytes(), &body); err != nil {
			return false
		}
		return body.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	jobsResp := ts.do(t, http.MethodGet, "/api/iso/jobs?all=true", nil, nil)
	require.Equal(t, http.StatusOK, jobsResp.Code)

	var all []models.GenerationJob
	decode(t, jobsResp, &all)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsDocker)
}

func TestIsoGenerateDefaultsToStagePath(t *testing.T) {
	ts := newTestServer(t, "")

	// Requests without an explicit source directory fall back to the staged
	// build tree under StagePath/<buildID>.
	staged := filepath.Join(ts.config.StagePath, "build-2")
	require.NoError(t, os.MkdirAll(staged, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staged, "lfs-release"), []byte("12.0\n"), 0644))

	resp := ts.do(t, http.MethodPost, "/api/iso/generate", map[string]any{
		"buildId": "build-2",
		"label":   "LFS_12",
	}, nil)
	require.Equal(t, http.StatusAccepted, resp.Code)

	var accepted struct {
		JobID string `json:"jobId"`
	}
	decode(t, resp, &accepted)
	require.NotEmpty(t, accepted.JobID)

	require.Eventually(t, func() bool {
		statusResp := ts.do(t, http.MethodGet, "/api/iso/status/"+accepted.JobID, nil, nil)
		if statusResp.Code != http.StatusOK {
			return false
		}
		var body struct {
			Status models.JobStatus `json:"status"`
		}
		if err := json.Unmarshal(statusResp.Body.Bytes(), &body); err != nil {
			return false
		}
		return body.Status == models.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestIsoGenerateValidation(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, http.MethodPost, "/api/iso/generate", map[string]any{"buildId": "b1"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
