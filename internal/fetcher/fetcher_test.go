package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/qrng-diode/internal/apperr"
)

func TestFetch_ValidRawBinary(t *testing.T) {
	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	f := New(srv.URL, 16)
	got, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetch_ValidJSONArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,200]`))
	}))
	defer srv.Close()

	f := New(srv.URL, 16)
	got, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 16)
	assert.Equal(t, byte(200), got[15])
}

func TestFetch_WrongLengthFailsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 8))
	}))
	defer srv.Close()

	f := New(srv.URL, 16)
	_, err := f.Fetch(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperr.New(apperr.Validation, ""))
}

func TestFetch_HTMLErrorPageRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!doctype html><html>oops........</html>"))
	}))
	defer srv.Close()

	f := New(srv.URL, 40)
	_, err := f.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFetch_ConstantStreamRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 16))
	}))
	defer srv.Close()

	f := New(srv.URL, 16)
	_, err := f.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFetch_ServerErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(srv.URL, 16)
	_, err := f.Fetch(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperr.New(apperr.Network, ""))
}
