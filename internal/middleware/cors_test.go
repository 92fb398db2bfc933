package middleware

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		preflight  bool
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{"explicit origin", []string{"http://localhost:5173"}, "http://localhost:5173", false, "http://localhost:5173", "true", http.StatusTeapot},
		{"unknown origin", []string{"http://localhost:5173"}, "http://evil.test", false, "", "", http.StatusTeapot},
		{"wildcard has no credentials", []string{"*"}, "http://any.test", false, "http://any.test", "", http.StatusTeapot},
		{"no origin header", []string{"*"}, "", false, "", "", http.StatusTeapot},
		{"preflight", []string{"https://nepwoop.com"}, "https://nepwoop.com", true, "https://nepwoop.com", "true", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodGet
			if tt.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/api/leads", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Allow-Credentials = %q, want %q", got, tt.wantCreds)
			}
		})
	}
}

func TestTrimOrigins(t *testing.T) {
	got := TrimOrigins([]string{"https://nepwoop.com/", "http://localhost:5173"})
	want := []string{"https://nepwoop.com", "http://localhost:5173"}
	if !slices.Equal(got, want) {
		t.Errorf("TrimOrigins() = %v, want %v", got, want)
	}
}
