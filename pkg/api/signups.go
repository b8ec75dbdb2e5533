package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/streetmed/rounds/pkg/core/model"
)

type signupRequest struct {
	Role model.SignupRole `json:"role"`
}

type assignRoleRequest struct {
	UserID string `json:"userId"`
}

type signedUpResponse struct {
	SignedUp bool `json:"signedUp"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	signup, err := s.engine.Signup(r.Context(), chi.URLParam(r, "roundID"), callerID(r.Context()), req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signup)
}

func (s *Server) cancelSignup(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Cancel(r.Context(), chi.URLParam(r, "signupID"), callerID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) adminConfirm(w http.ResponseWriter, r *http.Request) {
	signup, err := s.engine.AdminConfirm(r.Context(), callerID(r.Context()), chi.URLParam(r, "signupID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signup)
}

func (s *Server) adminReject(w http.ResponseWriter, r *http.Request) {
	signup, err := s.engine.AdminReject(r.Context(), callerID(r.Context()), chi.URLParam(r, "signupID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signup)
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	role, err := parseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req assignRoleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	round, err := s.engine.AssignExclusiveRole(r.Context(), callerID(r.Context()), chi.URLParam(r, "roundID"), req.UserID, role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (s *Server) runLottery(w http.ResponseWriter, r *http.Request) {
	promoted, err := s.engine.RunLottery(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promoted)
}

func (s *Server) sendReminders(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.SendRoundReminders(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) listSignupsForRound(w http.ResponseWriter, r *http.Request) {
	details, err := s.engine.ListSignupsForRound(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) listConfirmed(w http.ResponseWriter, r *http.Request) {
	signups, err := s.engine.ListConfirmed(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signups)
}

func (s *Server) listWaitlist(w http.ResponseWriter, r *http.Request) {
	signups, err := s.engine.ListWaitlist(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signups)
}

func (s *Server) isSignedUp(w http.ResponseWriter, r *http.Request) {
	ok, err := s.engine.IsSignedUp(r.Context(), chi.URLParam(r, "roundID"), callerID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signedUpResponse{SignedUp: ok})
}

func (s *Server) participantCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.engine.ParticipantCounts(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) listUserSignups(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.ListUserSignups(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
