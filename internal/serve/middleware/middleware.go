// Package middleware carries the HTTP middleware shared by the job API and
// the worker-facing endpoints.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
	"github.com/stellar/go/support/http/mutil"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/monitor"
	"github.com/gridx-network/gridx-coordinator/internal/serve/httperror"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

// RecoverHandler turns a panicking handler into a 500 response so one bad
// request cannot take the server down. http.ErrAbortHandler is re-raised
// because net/http uses it to abort aborted connections silently.
func RecoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", r)
			}
			if errors.Is(err, http.ErrAbortHandler) {
				panic(err)
			}

			ctx := req.Context()
			log.Ctx(ctx).WithStack(err).Error(err)
			httperror.InternalError(ctx, "", err, nil).Render(rw)
		}()

		next.ServeHTTP(rw, req)
	})
}

// MetricsRequestHandler times every request and records it on the
// request-duration summary, labeled with status, route pattern and method.
func MetricsRequestHandler(monitorService monitor.MonitorServiceInterface) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(rw, req.ProtoMajor)

			start := time.Now()
			next.ServeHTTP(ww, req)

			labels := monitor.HttpRequestLabels{
				Status: strconv.Itoa(ww.Status()),
				Route:  utils.GetRoutePattern(req),
				Method: req.Method,
			}
			if err := monitorService.MonitorHttpRequestDuration(time.Since(start), labels); err != nil {
				log.Ctx(req.Context()).Errorf("recording request duration: %s", err)
			}
		})
	}
}

// CorsMiddleware lets browser clients from the configured origins call the
// API.
func CorsMiddleware(corsAllowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		c := cors.New(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedHeaders: []string{"*"},
			AllowedMethods: []string{"GET", "PUT", "POST", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		})
		return c.Handler(next)
	}
}

// RateLimitMiddleware caps request volume per client IP and endpoint. Over
// the limit the client gets the JSON error envelope instead of httprate's
// plain-text default.
func RateLimitMiddleware(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(rw http.ResponseWriter, req *http.Request) {
			httperror.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded.", nil, nil).Render(rw)
		}),
	)
}

// LoggingMiddleware attaches a request-scoped logger to the context and emits
// one entry when the request starts and another when it finishes.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ww := mutil.WrapWriter(rw)

		ctx := req.Context()
		logger := log.Ctx(ctx).WithFields(log.F{
			"method": req.Method,
			"path":   req.URL.String(),
			"req":    middleware.GetReqID(ctx),
		})
		req = req.WithContext(log.Set(ctx, logger))

		logger.WithFields(log.F{
			"subsys":    "http",
			"ip":        req.RemoteAddr,
			"host":      req.Host,
			"useragent": req.Header.Get("User-Agent"),
		}).Info("starting request")

		start := time.Now()
		next.ServeHTTP(ww, req)

		entry := logger.WithFields(log.F{
			"subsys":   "http",
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start),
		})
		// The route pattern is only known after routing, so it is read at
		// the end of the request.
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			entry = entry.WithField("route", rctx.RoutePattern())
		}
		entry.Info("finished request")
	})
}
