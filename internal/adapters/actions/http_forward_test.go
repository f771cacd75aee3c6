package actions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forwardParamsFor(t *testing.T, endpoint string, refinements []string) json.RawMessage {
	t.Helper()
	params, err := json.Marshal(forwardParams{
		Endpoint:    endpoint,
		Payload:     json.RawMessage(`{"to":"ops"}`),
		Refinements: refinements,
	})
	require.NoError(t, err)
	return params
}

func TestHTTPForwardExecute(t *testing.T) {
	var received forwardParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"delivered": true}`))
	}))
	defer srv.Close()

	fwd := NewHTTPForward(srv.Client())
	result, err := fwd.Execute(context.Background(),
		forwardParamsFor(t, srv.URL, []string{"include totals"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"delivered": true}`, string(result))
	assert.JSONEq(t, `{"to":"ops"}`, string(received.Payload))
	assert.Equal(t, []string{"include totals"}, received.Refinements)
}

func TestHTTPForwardWrapsNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("accepted"))
	}))
	defer srv.Close()

	fwd := NewHTTPForward(srv.Client())
	result, err := fwd.Execute(context.Background(), forwardParamsFor(t, srv.URL, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"body": "accepted"}`, string(result))
}

func TestHTTPForwardNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	fwd := NewHTTPForward(srv.Client())
	_, err := fwd.Execute(context.Background(), forwardParamsFor(t, srv.URL, nil))
	require.ErrorContains(t, err, "status 502")
}

func TestHTTPForwardParameterErrors(t *testing.T) {
	fwd := NewHTTPForward(nil)

	_, err := fwd.Execute(context.Background(), json.RawMessage(`not json`))
	assert.ErrorContains(t, err, "decode forward parameters")

	_, err = fwd.Execute(context.Background(), json.RawMessage(`{"payload": {}}`))
	assert.ErrorContains(t, err, "missing endpoint")
}

func TestEcho(t *testing.T) {
	out, err := Echo(context.Background(), json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))

	out, err = Echo(context.Background(), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out))
}
