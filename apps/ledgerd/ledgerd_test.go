package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keep94/cardledger/apps/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutes(t *testing.T) {
	config := common.Default()
	config.LogLevel = "disabled"
	env, err := common.Open(context.Background(), config, zerolog.Nop())
	require.NoError(t, err)
	defer env.Close()
	handler := newHandler(env, config)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(
		http.MethodPost,
		"/api/records",
		strings.NewReader(`{"desc":"Groceries","value":-4500}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/acdesc", nil))
	var items []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Contains(t, items, "Groceries")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"profile":"default"`)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nosuch", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
