package netx

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDownload(t *testing.T) {
	payload := []byte("hello, media")

	t.Run("success 200 OK", func(t *testing.T) {
		var gotMethod, gotQuery string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotQuery = r.URL.RawQuery
			_, _ = w.Write(payload)
		}))
		defer ts.Close()

		got, err := Download(context.Background(), ts.Client(), ts.URL+"/obj?X-Amz-Signature=abc", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotMethod != http.MethodGet {
			t.Fatalf("method = %q, want GET", gotMethod)
		}
		if gotQuery != "X-Amz-Signature=abc" {
			t.Fatalf("query = %q", gotQuery)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("body = %q, want %q", got, payload)
		}
	})

	t.Run("non-200 -> error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer ts.Close()

		_, err := Download(context.Background(), nil, ts.URL, 0)
		if err == nil || !strings.Contains(err.Error(), "download failed: 403") {
			t.Fatalf("error = %v, want to contain 403", err)
		}
	})

	t.Run("limit exceeded", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		}))
		defer ts.Close()

		_, err := Download(context.Background(), nil, ts.URL, 4)
		if !errors.Is(err, ErrTooLarge) {
			t.Fatalf("error = %v, want ErrTooLarge", err)
		}

		got, err := Download(context.Background(), nil, ts.URL, int64(len(payload)))
		if err != nil || !bytes.Equal(got, payload) {
			t.Fatalf("exact limit: got %q, %v", got, err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer ts.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := Download(ctx, nil, ts.URL, 0)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("error = %v, want deadline exceeded", err)
		}
	})

	t.Run("network error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		_, err := Download(context.Background(), nil, ts.URL, 0)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if strings.Contains(err.Error(), "download failed") {
			t.Fatalf("got wrong kind of error: %v", err)
		}
	})
}
