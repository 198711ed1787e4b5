package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendPostsPayloadAndHeaders(t *testing.T) {
	var gotBody, gotAuth, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("X-Signature")
		gotMethod = r.Method
		w.Header().Set("X-Reply", "ok")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("accepted"))
	}))
	defer srv.Close()

	resp, err := NewClient(time.Second).Send(context.Background(), Request{
		URL:     srv.URL,
		Headers: map[string]string{"X-Signature": "abc"},
		Payload: []byte(`{"a":1}`),
	})
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", resp.Body)
	assert.Equal(t, "ok", resp.Headers["X-Reply"])
	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, "abc", gotAuth)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestClient_Non2xxIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	resp, err := NewClient(time.Second).Send(context.Background(), Request{URL: srv.URL, Method: "put"})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(time.Second).Send(context.Background(), Request{URL: url})
	assert.Error(t, err)

	_, err = NewClient(time.Second).Send(context.Background(), Request{})
	assert.Error(t, err)
}
