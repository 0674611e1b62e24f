package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hearthbeat/hearthbeat/internal/auth"
	"github.com/hearthbeat/hearthbeat/internal/household"
	"github.com/hearthbeat/hearthbeat/internal/location"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"activeTopics": len(s.hub.ActiveTopics()),
	})
}

// handleUpdatePosition is the REST publish path. It shares payload shape
// and routing semantics with the streaming path, and additionally
// persists the last-known position.
func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var upd location.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}
	if err := upd.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "userId, latitude and longitude are required")
		return
	}

	ctx := r.Context()
	if err := s.store.SavePosition(ctx, *upd.UserID, *upd.Latitude, *upd.Longitude, time.Now()); err != nil {
		if errors.Is(err, household.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown user")
			return
		}
		s.logger.Error("failed to persist position",
			zap.Int64("userID", *upd.UserID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to persist position")
		return
	}

	outcome := s.router.Route(ctx, &upd)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"message":   "position updated",
		"broadcast": outcome == location.OutcomePublished,
	})
}

// handleSetSharing toggles the sharing preference for every member of a
// household. The caller must belong to the household.
func (s *Server) handleSetSharing(w http.ResponseWriter, r *http.Request) {
	householdID, err := strconv.ParseInt(chi.URLParam(r, "householdID"), 10, 64)
	if err != nil || householdID <= 0 {
		writeError(w, http.StatusBadRequest, "household id must be a positive integer")
		return
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	ctx := r.Context()
	callerID, ok := auth.UserID(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	member, err := s.membership.IsMember(ctx, householdID, callerID)
	if err != nil {
		s.logger.Error("membership lookup failed",
			zap.Int64("householdID", householdID),
			zap.Int64("userID", callerID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "membership check failed")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this household")
		return
	}

	updated, err := s.store.SetHouseholdSharing(ctx, householdID, *body.Enabled)
	if err != nil {
		s.logger.Error("failed to update sharing preference",
			zap.Int64("householdID", householdID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to update sharing preference")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"updated": updated,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
