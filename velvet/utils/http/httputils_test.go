package httputils

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(`{"echo":` + string(body) + `}`))
	}))
	defer srv.Close()

	var out struct {
		Echo map[string]string `json:"echo"`
	}
	err := PostJSON(context.Background(), srv.Client(), srv.URL, map[string]string{"q": "hi"}, &out)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if out.Echo["q"] != "hi" {
		t.Errorf("unexpected echo %v", out.Echo)
	}
}

func TestGetJSONBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := GetJSON(context.Background(), srv.Client(), srv.URL, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusServiceUnavailable || se.Body != "model not loaded" {
		t.Errorf("unexpected status error %+v", se)
	}
}

func TestBearerAndCreatedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"x"}`))
	}))
	defer srv.Close()

	var out struct {
		ID string `json:"id"`
	}
	if err := PostJSON(context.Background(), srv.Client(), srv.URL, map[string]string{}, &out, Bearer("tok")); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if out.ID != "x" {
		t.Errorf("unexpected body %+v", out)
	}
	if err := PostJSON(context.Background(), srv.Client(), srv.URL, nil, nil); err == nil {
		t.Error("expected 401 without token")
	}
}
