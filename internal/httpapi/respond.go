package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hallpass-dev/hallpass/internal/hallpass/service"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respond writes v as protobuf or JSON depending on what the client asked for.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsProtobuf(r) {
		st, err := toStruct(v)
		if err != nil {
			http.Error(w, "proto marshal error", http.StatusInternalServerError)
			return
		}
		writeProto(w, status, st)
		return
	}
	writeJSON(w, status, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	respond(w, r, status, types.ErrorResponse{OK: false, Error: code, Message: msg})
}

var preconditionCodes = []struct {
	err  error
	code string
}{
	{service.ErrActivePass, "active_pass"},
	{service.ErrDestinationIsOrigin, "destination_is_origin"},
	{service.ErrPassNotOpen, "pass_not_open"},
	{service.ErrPassNotClosed, "pass_not_closed"},
	{service.ErrAlreadyArchived, "already_archived"},
	{service.ErrOutToCurrent, "out_to_current"},
	{service.ErrRestroomDestination, "restroom_destination"},
	{service.ErrRestroomReturn, "restroom_return"},
	{service.ErrInvalidCheckIn, "invalid_check_in"},
	{service.ErrNotAtScheduledLocation, "not_at_scheduled_location"},
	{service.ErrLocationPlanningBlocked, "location_planning_blocked"},
	{service.ErrLocationAtCapacity, "location_at_capacity"},
	{service.ErrLocationRequiresApproval, "location_requires_approval"},
	{service.ErrLocationTimeLimit, "location_time_limit"},
}

// errorStatus maps a service error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, service.ErrPassNotFound):
		return http.StatusNotFound, "pass_not_found"
	case errors.Is(err, service.ErrGroupNotFound):
		return http.StatusNotFound, "group_not_found"
	case errors.Is(err, service.ErrLocationNotFound):
		return http.StatusNotFound, "location_not_found"
	}
	for _, pc := range preconditionCodes {
		if errors.Is(err, pc.err) {
			return http.StatusConflict, pc.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("%s error: %v", op, err)
		writeError(w, r, status, code, "unexpected server error")
		return
	}
	writeError(w, r, status, code, err.Error())
}
