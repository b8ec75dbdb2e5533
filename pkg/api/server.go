package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/internal/config"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/core/services"
	"github.com/streetmed/rounds/pkg/utils/workpool"
)

// SeriesCatalog resolves configured round series by name
type SeriesCatalog interface {
	Series(name string) (*config.RoundSeries, error)
}

// RoundRegistry is the subset of the registry the request layer exposes
type RoundRegistry interface {
	Create(ctx context.Context, spec services.RoundSpec) (*model.Round, error)
	CreateSeries(ctx context.Context, series config.RoundSeries, from, until time.Time) ([]model.Round, error)
	Update(ctx context.Context, id string, patch services.RoundPatch) (*model.Round, error)
	Cancel(ctx context.Context, id string) (*model.Round, error)
	Complete(ctx context.Context, id string) (*model.Round, error)
	Get(ctx context.Context, id string) (*model.Round, error)
	ListUpcoming(ctx context.Context) ([]model.Round, error)
	ListByStatus(ctx context.Context, status model.RoundStatus) ([]model.Round, error)
	ListInRange(ctx context.Context, start, end time.Time) ([]model.Round, error)
	ListNeedingTeamLead(ctx context.Context) ([]model.Round, error)
	ListNeedingClinician(ctx context.Context) ([]model.Round, error)
	ListForTeamLead(ctx context.Context, userID string) ([]model.Round, error)
	ListForClinician(ctx context.Context, userID string) ([]model.Round, error)
	CountUpcoming(ctx context.Context) (int, error)
}

// SignupEngine is the subset of the signup engine the request layer exposes
type SignupEngine interface {
	Signup(ctx context.Context, roundID, userID string, role model.SignupRole) (*model.Signup, error)
	RunLottery(ctx context.Context, roundID string) ([]model.Signup, error)
	Cancel(ctx context.Context, signupID, userID string) (*services.CancelResult, error)
	AdminConfirm(ctx context.Context, adminID, signupID string) (*model.Signup, error)
	AdminReject(ctx context.Context, adminID, signupID string) (*model.Signup, error)
	AssignExclusiveRole(ctx context.Context, adminID, roundID, userID string, role model.SignupRole) (*model.Round, error)
	CascadeRoundCancellation(ctx context.Context, roundID string) (int, error)
	SendRoundReminders(ctx context.Context) (int, error)
	ListSignupsForRound(ctx context.Context, roundID string) ([]services.SignupDetail, error)
	ListUserSignups(ctx context.Context, userID string) (*services.UserSignups, error)
	ParticipantCounts(ctx context.Context, roundID string) (*services.ParticipantCounts, error)
	IsSignedUp(ctx context.Context, roundID, userID string) (bool, error)
	ListConfirmed(ctx context.Context, roundID string) ([]model.Signup, error)
	ListWaitlist(ctx context.Context, roundID string) ([]model.Signup, error)
}

// Server is the HTTP request layer over the round registry and signup engine.
// Callers are identified by the X-User-ID header; authenticating that header
// is left to whatever sits in front of the server.
type Server struct {
	registry RoundRegistry
	engine   SignupEngine
	identity services.IdentityLookup
	series   SeriesCatalog
	pool     *workpool.Pool
	logger   *zap.Logger
}

func NewServer(registry RoundRegistry, engine SignupEngine, identity services.IdentityLookup, series SeriesCatalog, pool *workpool.Pool, logger *zap.Logger) *Server {
	return &Server{
		registry: registry,
		engine:   engine,
		identity: identity,
		series:   series,
		pool:     pool,
		logger:   logger,
	}
}

// Router builds the chi router for every exposed operation
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(s.requestLogger)
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Group(func(r chi.Router) {
		r.Use(s.limitConcurrency)
		r.Use(requireCaller)

		r.Get("/rounds", s.listRounds)
		r.Get("/rounds/count", s.countUpcoming)
		r.Get("/rounds/needing/{role}", s.listNeedingRole)
		r.Get("/rounds/{roundID}", s.getRound)
		r.Get("/rounds/{roundID}/counts", s.participantCounts)
		r.Get("/rounds/{roundID}/signups", s.listSignupsForRound)
		r.Get("/rounds/{roundID}/signups/confirmed", s.listConfirmed)
		r.Get("/rounds/{roundID}/signups/waitlist", s.listWaitlist)
		r.Get("/rounds/{roundID}/signups/me", s.isSignedUp)
		r.Post("/rounds/{roundID}/signups", s.signup)

		r.Get("/users/{userID}/signups", s.listUserSignups)
		r.Get("/users/{userID}/rounds/{role}", s.listRoundsForUser)

		r.Delete("/signups/{signupID}", s.cancelSignup)

		// operations the engine authorises itself
		r.Post("/signups/{signupID}/confirm", s.adminConfirm)
		r.Post("/signups/{signupID}/reject", s.adminReject)
		r.Put("/rounds/{roundID}/roles/{role}", s.assignRole)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/rounds", s.createRound)
			r.Patch("/rounds/{roundID}", s.updateRound)
			r.Post("/rounds/{roundID}/cancel", s.cancelRound)
			r.Post("/rounds/{roundID}/complete", s.completeRound)
			r.Post("/rounds/{roundID}/lottery", s.runLottery)
			r.Post("/rounds/{roundID}/release", s.releaseSignups)
			r.Post("/series/{name}", s.createSeries)
			r.Post("/reminders", s.sendReminders)
		})
	})

	return router
}
