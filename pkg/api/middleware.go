package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/utils/workpool"
)

type contextKey string

const callerKey contextKey = "caller"

// CallerHeader carries the id of the user making the request
const CallerHeader = "X-User-ID"

func callerID(ctx context.Context) string {
	id, _ := ctx.Value(callerKey).(string)
	return id
}

func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CallerHeader)
		if id == "" {
			writeMessage(w, http.StatusUnauthorized, "missing "+CallerHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), callerKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin guards registry mutations, which carry no actor of their own
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.identity.GetUser(r.Context(), callerID(r.Context()))
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				err = apperr.Authorization("only administrators can perform this action")
			}
			s.writeError(w, r, err)
			return
		}
		if !user.IsAdmin() {
			s.writeError(w, r, apperr.Authorization("only administrators can perform this action"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitConcurrency runs each request on the bounded worker pool
func (s *Server) limitConcurrency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.pool.Do(r.Context(), func(ctx context.Context) error {
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
		switch {
		case err == nil:
		case errors.Is(err, workpool.ErrBusy):
			s.logger.Warn("Rejecting request, worker pool saturated",
				zap.String("path", r.URL.Path),
				zap.Int("in_flight", s.pool.InFlight()))
			writeMessage(w, http.StatusServiceUnavailable, workpool.ErrBusy.Error())
		default:
			// the client went away while queued
			s.logger.Debug("Request abandoned while queued",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			writeMessage(w, http.StatusServiceUnavailable, workpool.ErrBusy.Error())
		}
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request handled",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
