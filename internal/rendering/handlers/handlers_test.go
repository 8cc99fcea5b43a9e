package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/rendering/dto"
	"github.com/bluegrid/rrm/internal/rendering/repository"
	"github.com/bluegrid/rrm/internal/rendering/service"
)

func newConfigRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := service.NewService(repository.NewMemoryRepository(), nil, logger.Default())
	router := gin.New()
	RegisterRoutes(router, svc, logger.Default())
	return router
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		data, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func rtneuronRequest() dto.SaveConfigRequest {
	return dto.SaveConfigRequest{
		ID:                            "rtneuron",
		CommandLine:                   "rtneuron-app --no-gui",
		EnvironmentVariables:          "DISPLAY=:0",
		Modules:                       "BBP/viz/latest",
		SchedulerRestParametersFormat: "--rest ${rest_hostname}:${rest_port}",
	}
}

func TestCreateAndGetConfig(t *testing.T) {
	router := newConfigRouter(t)

	resp := performRequest(router, http.MethodPost, "/config/", rtneuronRequest())
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var msg dto.MessageResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &msg))
	assert.Equal(t, "Rendering Resource rtneuron successfully configured", msg.Message)

	resp = performRequest(router, http.MethodGet, "/config/rtneuron", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var cfg dto.RendererConfigDTO
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cfg))
	assert.Equal(t, "rtneuron", cfg.ID)
	assert.Equal(t, "rtneuron-app --no-gui", cfg.CommandLine)
	// Omitted flags keep their column defaults.
	assert.True(t, cfg.GracefulExit)
	assert.False(t, cfg.WaitUntilRunning)

	resp = performRequest(router, http.MethodPost, "/config/", rtneuronRequest())
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestCreateConfigValidation(t *testing.T) {
	router := newConfigRouter(t)

	body := rtneuronRequest()
	body.CommandLine = ""
	resp := performRequest(router, http.MethodPost, "/config/", body)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	body = rtneuronRequest()
	body.ID = ""
	resp = performRequest(router, http.MethodPost, "/config/", body)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdateConfig(t *testing.T) {
	router := newConfigRouter(t)

	resp := performRequest(router, http.MethodPut, "/config/", rtneuronRequest())
	assert.Equal(t, http.StatusNotFound, resp.Code)

	performRequest(router, http.MethodPost, "/config/", rtneuronRequest())

	body := rtneuronRequest()
	body.CommandLine = "rtneuron-app --eq-layout wall"
	wait := true
	body.WaitUntilRunning = &wait
	resp = performRequest(router, http.MethodPut, "/config/", body)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = performRequest(router, http.MethodGet, "/config/rtneuron", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var cfg dto.RendererConfigDTO
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cfg))
	assert.Equal(t, "rtneuron-app --eq-layout wall", cfg.CommandLine)
	assert.True(t, cfg.WaitUntilRunning)
}

func TestDeleteConfig(t *testing.T) {
	router := newConfigRouter(t)
	performRequest(router, http.MethodPost, "/config/", rtneuronRequest())

	resp := performRequest(router, http.MethodDelete, "/config/rtneuron", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var msg dto.MessageResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &msg))
	assert.Equal(t, "Settings successfully deleted", msg.Message)

	resp = performRequest(router, http.MethodDelete, "/config/rtneuron", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListConfigsOrderedByID(t *testing.T) {
	router := newConfigRouter(t)

	performRequest(router, http.MethodPost, "/config/", rtneuronRequest())
	livre := rtneuronRequest()
	livre.ID = "livre"
	livre.CommandLine = "livre --streaming"
	performRequest(router, http.MethodPost, "/config/", livre)

	resp := performRequest(router, http.MethodGet, "/config/", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var configs []dto.RendererConfigDTO
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &configs))
	require.Len(t, configs, 2)
	assert.Equal(t, "livre", configs[0].ID)
	assert.Equal(t, "rtneuron", configs[1].ID)
}

func TestConfigIDNormalizedToLowercase(t *testing.T) {
	router := newConfigRouter(t)

	body := rtneuronRequest()
	body.ID = "RTNeuron"
	resp := performRequest(router, http.MethodPost, "/config/", body)
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = performRequest(router, http.MethodGet, "/config/RTNeuron", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var cfg dto.RendererConfigDTO
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cfg))
	assert.Equal(t, "rtneuron", cfg.ID)
}
