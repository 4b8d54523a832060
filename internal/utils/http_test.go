package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_GetRoutePattern(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	testCases := []struct {
		name        string
		method      string
		target      string
		wantPattern string
	}{
		{name: "🎉 resolves a parameterized route", method: "GET", target: "/jobs/4f6c2af1-2f35-4a9b-9f55-0c8a4f5376b1", wantPattern: "/jobs/{id}"},
		{name: "🎉 resolves a static route", method: "GET", target: "/health", wantPattern: "/health"},
		{name: "unmatched method reports undefined", method: "POST", target: "/health", wantPattern: "undefined"},
		{name: "unknown path reports undefined", method: "GET", target: "/nope", wantPattern: "undefined"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPattern string
			captureRoutePattern := func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
					gotPattern = GetRoutePattern(req)
					next.ServeHTTP(rw, req)
				})
			}

			r := chi.NewRouter()
			r.Use(captureRoutePattern)
			r.Get("/health", okHandler.ServeHTTP)
			r.Get("/jobs/{id}", okHandler.ServeHTTP)

			req, err := http.NewRequest(tc.method, tc.target, nil)
			require.NoError(t, err)
			r.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tc.wantPattern, gotPattern)
		})
	}
}
