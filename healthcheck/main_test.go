package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"server error", http.StatusInternalServerError, true},
		{"not found", http.StatusNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := probe(&http.Client{Timeout: time.Second}, srv.URL+"/")
			if (err != nil) != tt.wantErr {
				t.Errorf("probe() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := probe(&http.Client{Timeout: time.Second}, url); err == nil {
		t.Error("Expected an error for a closed server")
	}
}

func TestTargetURL(t *testing.T) {
	env := func(port string) func(string) string {
		return func(key string) string {
			if key == "PORT" {
				return port
			}
			return ""
		}
	}

	tests := []struct {
		name   string
		url    string
		port   string
		envVal string
		want   string
	}{
		{"default", "", "", "", "http://localhost:31234/"},
		{"env", "", "", "8080", "http://localhost:8080/"},
		{"flag beats env", "", "9000", "8080", "http://localhost:9000/"},
		{"url beats all", "http://10.0.0.5:9000/", "9001", "8080", "http://10.0.0.5:9000/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := targetURL(tt.url, tt.port, env(tt.envVal)); got != tt.want {
				t.Errorf("targetURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
