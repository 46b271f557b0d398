package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/emotion-graph/pkg/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL+"/"), WithRate(0))
}

func TestAnalyzeMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze_message", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "u1", req["user_id"])
		assert.Equal(t, "hello", req["message"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"vector": {"subjectivity": 0.5, "polarity": -0.2, "fear": 0, "anger": 0, "anticip": 0.3,
				"trust": 0, "surprise": 0, "sadness": 0, "disgust": 0, "joy": 0.9},
			"log": [
				{"timeStep": 0, "receiver": "u1"},
				{"timeStep": 1, "sender": "u1", "receiver": "u2", "action": "share"}
			],
			"message": "ok"
		}`))
	})

	resp, err := c.AnalyzeMessage(context.Background(), "u1", "hello")
	require.NoError(t, err)

	assert.Equal(t, 0.5, resp.Vector[0])
	assert.Equal(t, -0.2, resp.Vector[1])
	assert.Equal(t, 0.3, resp.Vector.Labeled()["anticipation"])
	assert.Equal(t, 0.9, resp.Vector.Labeled()["joy"])
	require.Len(t, resp.Log, 2)
	assert.Equal(t, "u2", resp.Log[1].Receiver)
	assert.Equal(t, "ok", resp.Message)
}

func TestAnalyzeMessageArrayVector(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"vector": [1,2,3,4,5,6,7,8,9,10]}`))
	})

	resp, err := c.AnalyzeMessage(context.Background(), "u1", "hi")
	require.NoError(t, err)
	require.NotNil(t, resp.Vector)
	assert.Equal(t, model.Vector{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, *resp.Vector)
	assert.Empty(t, resp.Log)
}

func TestServiceErrorDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail": "model not loaded"}`))
	})

	_, err := c.AnalyzeMessage(context.Background(), "u1", "hi")
	require.Error(t, err)

	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.StatusCode)
	assert.Equal(t, "model not loaded", se.Detail)
	assert.True(t, IsServiceError(err))
	assert.Equal(t, "Analysis failed: model not loaded", UserMessage(err))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestServiceErrorValidationList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail": [{"msg": "field required"}, {"msg": "too short"}]}`))
	})

	_, err := c.AnalyzeMessage(context.Background(), "", "")
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "field required; too short", se.Detail)
}

func TestServiceErrorPlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.AnalyzeMessage(context.Background(), "u1", "hi")
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "bad gateway", se.Detail)
}

func TestInvalidResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"vector": [1, 2]}`))
	})

	_, err := c.AnalyzeMessage(context.Background(), "u1", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidResponse))
	assert.Equal(t, "Analysis service returned an invalid response", UserMessage(err))
}

func TestIncompleteVectorIsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing labels", `{"vector": {"joy": 0.5}, "log": []}`},
		{"no vector", `{"log": []}`},
		{"null vector", `{"vector": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			resp, err := c.AnalyzeMessage(context.Background(), "u1", "hi")
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.True(t, errors.Is(err, ErrInvalidResponse))

			_, err = c.Analyze(context.Background(), "hi")
			assert.True(t, errors.Is(err, ErrInvalidResponse))
		})
	}
}

func TestWithTimeoutLeavesCallerClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c := NewClient(WithHTTPClient(shared), WithTimeout(time.Second))

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.NotSame(t, shared, c.httpClient)

	d := NewClient(WithTimeout(time.Second))
	assert.Equal(t, time.Second, d.httpClient.Timeout)
}

func TestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(WithBaseURL(url), WithRate(0), WithTimeout(time.Second))
	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, IsServiceError(err))
	assert.Equal(t, "Analysis service is not reachable", UserMessage(err))
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}

func TestAnalyzeText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "some text", req["text"])
		_, _ = w.Write([]byte(`{"vector": [0, 0, 1, 0, 0, 0, 0, 0, 0, 0]}`))
	})

	resp, err := c.Analyze(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.Vector.Labeled()["fear"])
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.AnalyzeMessage(ctx, "u1", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
