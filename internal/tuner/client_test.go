package tuner

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPrograms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/programs", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1}, {"id": 2}})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	programs, err := c.FetchPrograms(t.Context())
	require.NoError(t, err)
	assert.Len(t, programs, 2)
}

func TestGetProgram(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/programs/42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	program, err := c.GetProgram(t.Context(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), program.ID)
}

func TestOpenProgramStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/programs/7/stream", r.URL.Path)
		w.Write([]byte("mpegts-bytes"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	rc, err := c.OpenProgramStream(t.Context(), 7)
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, 128)
	n, _ := rc.Read(buf)
	assert.Equal(t, "mpegts-bytes", string(buf[:n]))
}

func TestOpenProgramStream_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.OpenProgramStream(t.Context(), 99)
	assert.Error(t, err)
}

func TestStreamEvents_SkipsFramingLinesAndDecodesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "resource=programs", r.URL.RawQuery)
		w.Write([]byte("[\n"))
		w.Write([]byte(`{"resource":"program","data":{"id":1}}` + "\n"))
		w.Write([]byte(",\n"))
		w.Write([]byte(`{"resource":"service","data":{"id":2}}` + "\n"))
		w.Write([]byte("]\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	events, errs := c.StreamEvents(t.Context())

	var got []string
	for ev := range events {
		got = append(got, string(ev.Resource))
	}
	select {
	case err := <-errs:
		require.NoError(t, err)
	default:
	}
	assert.Equal(t, []string{"program", "service"}, got)
}

func TestStreamEvents_MalformedLineReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not-json\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	events, errs := c.StreamEvents(t.Context())

	for range events {
	}
	err := <-errs
	assert.Error(t, err)
}
