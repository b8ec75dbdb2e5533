package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/core/services"
)

type roundRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	Location        string    `json:"location"`
	MaxParticipants int       `json:"maxParticipants"`
}

type roundPatchRequest struct {
	Title           *string            `json:"title"`
	Description     *string            `json:"description"`
	StartTime       *time.Time         `json:"startTime"`
	EndTime         *time.Time         `json:"endTime"`
	Location        *string            `json:"location"`
	MaxParticipants *int               `json:"maxParticipants"`
	TeamLeadID      *string            `json:"teamLeadId"`
	ClinicianID     *string            `json:"clinicianId"`
	Status          *model.RoundStatus `json:"status"`
}

type seriesRequest struct {
	From  time.Time `json:"from"`
	Until time.Time `json:"until"`
}

type countResponse struct {
	Count int `json:"count"`
}

// parseRole accepts TEAM_LEAD, team_lead and team-lead
func parseRole(value string) (model.SignupRole, error) {
	role := model.SignupRole(strings.ToUpper(strings.ReplaceAll(value, "-", "_")))
	if !role.IsValid() {
		return "", badParam("role", value, errUnknownValue)
	}
	return role, nil
}

func parseTime(r *http.Request, name string) (time.Time, bool, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, badParam(name, value, err)
	}
	return t, true, nil
}

func (s *Server) createRound(w http.ResponseWriter, r *http.Request) {
	var req roundRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	round, err := s.registry.Create(r.Context(), services.RoundSpec(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

func (s *Server) createSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	series, err := s.series.Series(name)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindNotFound, err, "round series "+name+" not found"))
		return
	}

	var req seriesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rounds, err := s.registry.CreateSeries(r.Context(), *series, req.From, req.Until)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rounds)
}

func (s *Server) updateRound(w http.ResponseWriter, r *http.Request) {
	var req roundPatchRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	round, err := s.registry.Update(r.Context(), chi.URLParam(r, "roundID"), services.RoundPatch(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// cancelRound cancels the round and releases its signups
func (s *Server) cancelRound(w http.ResponseWriter, r *http.Request) {
	result, err := services.CancelRoundWithSignups(r.Context(), s.registry, s.engine, s.logger, chi.URLParam(r, "roundID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) releaseSignups(w http.ResponseWriter, r *http.Request) {
	released, err := s.engine.CascadeRoundCancellation(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: released})
}

func (s *Server) completeRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.registry.Complete(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.registry.Get(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// listRounds serves upcoming rounds, or filters by ?status= or ?from=&to=
func (s *Server) listRounds(w http.ResponseWriter, r *http.Request) {
	from, hasFrom, err := parseTime(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, hasTo, err := parseTime(r, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := r.URL.Query().Get("status")

	var rounds []model.Round
	switch {
	case hasFrom || hasTo:
		if !hasFrom || !hasTo {
			s.writeError(w, r, apperr.Validation("from and to must be given together"))
			return
		}
		rounds, err = s.registry.ListInRange(r.Context(), from, to)
	case status != "":
		rounds, err = s.registry.ListByStatus(r.Context(), model.RoundStatus(strings.ToUpper(status)))
	default:
		rounds, err = s.registry.ListUpcoming(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) countUpcoming(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.CountUpcoming(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) listNeedingRole(w http.ResponseWriter, r *http.Request) {
	role, err := parseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var rounds []model.Round
	switch role {
	case model.RoleTeamLead:
		rounds, err = s.registry.ListNeedingTeamLead(r.Context())
	case model.RoleClinician:
		rounds, err = s.registry.ListNeedingClinician(r.Context())
	default:
		err = apperr.Validation("%s is not an exclusive role", role)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) listRoundsForUser(w http.ResponseWriter, r *http.Request) {
	role, err := parseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	userID := chi.URLParam(r, "userID")

	var rounds []model.Round
	switch role {
	case model.RoleTeamLead:
		rounds, err = s.registry.ListForTeamLead(r.Context(), userID)
	case model.RoleClinician:
		rounds, err = s.registry.ListForClinician(r.Context(), userID)
	default:
		err = apperr.Validation("%s is not an exclusive role", role)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}
