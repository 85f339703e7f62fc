package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/hallpass-dev/hallpass/internal/hallpass/rules"
	"github.com/hallpass-dev/hallpass/internal/hallpass/service"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
	"github.com/hallpass-dev/hallpass/internal/metrics"
)

type Dependencies struct {
	Logger            *log.Logger
	Addr              string
	PassService       *service.PassService
	GroupService      *service.GroupService
	LocationService   *service.LocationService
	EscalationService *service.EscalationService
	// EscalationConfig is applied by the escalate endpoint.
	EscalationConfig rules.EscalationConfig
	// Metrics, when set, is served at /metrics.
	Metrics *metrics.Recorder
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	passes     *service.PassService
	groups     *service.GroupService
	locations  *service.LocationService
	escalation *service.EscalationService
	escCfg     rules.EscalationConfig
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:     d.Logger,
		mux:        mux,
		passes:     d.PassService,
		groups:     d.GroupService,
		locations:  d.LocationService,
		escalation: d.EscalationService,
		escCfg:     d.EscalationConfig,
	}

	mux.HandleFunc("POST /v1/passes", s.handleCreatePass)
	mux.HandleFunc("GET /v1/passes/{id}", s.handleGetPass)
	mux.HandleFunc("GET /v1/passes/{id}/legs", s.handleListLegs)
	mux.HandleFunc("POST /v1/passes/{id}/out", s.handleOut)
	mux.HandleFunc("POST /v1/passes/{id}/in", s.handleIn)
	mux.HandleFunc("POST /v1/passes/{id}/close", s.handleClose)
	mux.HandleFunc("POST /v1/passes/{id}/force_close", s.handleForceClose)
	mux.HandleFunc("POST /v1/passes/{id}/archive", s.handleArchive)
	mux.HandleFunc("POST /v1/passes/{id}/validate", s.handleValidate)
	mux.HandleFunc("POST /v1/passes/{id}/escalate", s.handleEscalate)
	mux.HandleFunc("POST /v1/students/{id}/period_change", s.handlePeriodChange)

	mux.HandleFunc("POST /v1/groups", s.handleCreateGroup)
	mux.HandleFunc("GET /v1/groups", s.handleListGroups)
	mux.HandleFunc("GET /v1/groups/{id}", s.handleGetGroup)
	mux.HandleFunc("PUT /v1/groups/{id}", s.handleUpdateGroup)
	mux.HandleFunc("DELETE /v1/groups/{id}", s.handleDeleteGroup)
	mux.HandleFunc("POST /v1/groups/{id}/students", s.handleAssignStudents)
	mux.HandleFunc("POST /v1/groups/{id}/passes", s.handleCreateGroupPass)

	mux.HandleFunc("POST /v1/locations", s.handleCreateLocation)
	mux.HandleFunc("GET /v1/locations", s.handleListLocations)
	mux.HandleFunc("GET /v1/locations/{id}", s.handleGetLocation)
	mux.HandleFunc("PUT /v1/locations/{id}", s.handleUpdateLocation)
	mux.HandleFunc("DELETE /v1/locations/{id}", s.handleDeleteLocation)
	mux.HandleFunc("POST /v1/locations/{id}/staff", s.handleAssignStaff)
	mux.HandleFunc("POST /v1/locations/{id}/check", s.handleCheckLocation)

	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// decode reads the request body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeRequest(r, v); err != nil {
		if isProtobuf(r) {
			writeError(w, r, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
		} else {
			writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		}
		return false
	}
	return true
}

// ── Passes ───────────────────────────────────────────────────────────────────

func (s *Server) handleCreatePass(w http.ResponseWriter, r *http.Request) {
	var req types.CreatePassRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.passes.CreatePass(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, "create_pass", err)
		return
	}
	respond(w, r, http.StatusCreated, types.PassResponse{OK: true, Pass: p})
}

func (s *Server) handleGetPass(w http.ResponseWriter, r *http.Request) {
	p, err := s.passes.GetPassStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "get_pass", err)
		return
	}
	respond(w, r, http.StatusOK, types.PassResponse{OK: true, Pass: p})
}

func (s *Server) handleListLegs(w http.ResponseWriter, r *http.Request) {
	legs, err := s.passes.ListLegs(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "list_legs", err)
		return
	}
	respond(w, r, http.StatusOK, types.LegsResponse{OK: true, Legs: legs})
}

func (s *Server) handleOut(w http.ResponseWriter, r *http.Request) {
	var req types.MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.passResult(w, r, "out")(s.passes.Out(r.Context(), r.PathValue("id"), req.LocationID))
}

func (s *Server) handleIn(w http.ResponseWriter, r *http.Request) {
	var req types.MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.passResult(w, r, "in")(s.passes.InAction(r.Context(), r.PathValue("id"), req.LocationID))
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.passResult(w, r, "close")(s.passes.ClosePass(r.Context(), r.PathValue("id")))
}

func (s *Server) handleForceClose(w http.ResponseWriter, r *http.Request) {
	s.passResult(w, r, "force_close")(s.passes.ForceClosePass(r.Context(), r.PathValue("id")))
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.passResult(w, r, "archive")(s.passes.ArchivePass(r.Context(), r.PathValue("id")))
}

// passResult returns a sink for the (Pass, error) result of a transition.
func (s *Server) passResult(w http.ResponseWriter, r *http.Request, op string) func(types.Pass, error) {
	return func(p types.Pass, err error) {
		if err != nil {
			s.writeServiceError(w, r, op, err)
			return
		}
		respond(w, r, http.StatusOK, types.PassResponse{OK: true, Pass: p})
	}
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req types.ValidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	ok, err := s.passes.ValidateAction(r.Context(), r.PathValue("id"), req.Action, req.LocationID)
	if err != nil {
		s.writeServiceError(w, r, "validate", err)
		return
	}
	respond(w, r, http.StatusOK, types.ValidateResponse{OK: true, Valid: ok})
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	p, err := s.passes.GetPassStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "escalate", err)
		return
	}
	level, err := s.escalation.HandleEscalation(r.Context(), p, s.escCfg)
	if err != nil {
		s.writeServiceError(w, r, "escalate", err)
		return
	}
	respond(w, r, http.StatusOK, types.EscalateResponse{OK: true, Level: level})
}

func (s *Server) handlePeriodChange(w http.ResponseWriter, r *http.Request) {
	closed, err := s.passes.HandlePeriodChange(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "period_change", err)
		return
	}
	if closed == nil {
		closed = []types.Pass{}
	}
	respond(w, r, http.StatusOK, types.PeriodChangeResponse{OK: true, Closed: closed})
}

// ── Groups ───────────────────────────────────────────────────────────────────

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req types.CreateGroupRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.groups.CreateGroup(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, "create_group", err)
		return
	}
	respond(w, r, http.StatusCreated, types.GroupResponse{OK: true, Group: g})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.ListGroups(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "list_groups", err)
		return
	}
	respond(w, r, http.StatusOK, types.GroupsResponse{OK: true, Groups: groups})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.groups.GetGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "get_group", err)
		return
	}
	respond(w, r, http.StatusOK, types.GroupResponse{OK: true, Group: g})
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req types.CreateGroupRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.groups.UpdateGroup(r.Context(), types.Group{
		ID:                 r.PathValue("id"),
		Name:               req.Name,
		Type:               req.Type,
		StudentIDs:         req.StudentIDs,
		PermissionOverride: req.PermissionOverride,
	})
	if err != nil {
		s.writeServiceError(w, r, "update_group", err)
		return
	}
	respond(w, r, http.StatusOK, types.GroupResponse{OK: true, Group: g})
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.DeleteGroup(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, "delete_group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignStudents(w http.ResponseWriter, r *http.Request) {
	var req types.AssignStudentsRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.groups.AssignStudents(r.Context(), r.PathValue("id"), req.StudentIDs)
	if err != nil {
		s.writeServiceError(w, r, "assign_students", err)
		return
	}
	respond(w, r, http.StatusOK, types.GroupResponse{OK: true, Group: g})
}

func (s *Server) handleCreateGroupPass(w http.ResponseWriter, r *http.Request) {
	var req types.GroupPassRequest
	if !s.decode(w, r, &req) {
		return
	}
	passes, err := s.groups.CreateGroupPass(r.Context(), r.PathValue("id"),
		req.ScheduledLocationID, req.IssuedBy, req.Destination, req.Type)
	if err != nil {
		status, code := errorStatus(err)
		if status == http.StatusConflict || (status == http.StatusBadRequest && len(passes) > 0) {
			// Members before the failing one keep their passes.
			respond(w, r, status, types.GroupPassResponse{
				OK:      false,
				Passes:  passes,
				Error:   code,
				Message: err.Error(),
			})
			return
		}
		s.writeServiceError(w, r, "create_group_pass", err)
		return
	}
	respond(w, r, http.StatusCreated, types.GroupPassResponse{OK: true, Passes: passes})
}

// ── Locations ────────────────────────────────────────────────────────────────

func locationFromRequest(id string, req types.LocationRequest) types.Location {
	return types.Location{
		ID:               id,
		Name:             req.Name,
		Capacity:         req.Capacity,
		CurrentCount:     req.CurrentCount,
		StaffIDs:         req.StaffIDs,
		Shared:           req.Shared,
		PlanningBlocked:  req.PlanningBlocked,
		RequiresApproval: req.RequiresApproval,
		TimeLimitMinutes: req.TimeLimitMinutes,
		Restroom:         req.Restroom,
	}
}

func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var req types.LocationRequest
	if !s.decode(w, r, &req) {
		return
	}
	loc, err := s.locations.CreateLocation(r.Context(), locationFromRequest("", req))
	if err != nil {
		s.writeServiceError(w, r, "create_location", err)
		return
	}
	respond(w, r, http.StatusCreated, types.LocationResponse{OK: true, Location: loc})
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := s.locations.ListLocations(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "list_locations", err)
		return
	}
	respond(w, r, http.StatusOK, types.LocationsResponse{OK: true, Locations: locs})
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := s.locations.GetLocation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "get_location", err)
		return
	}
	respond(w, r, http.StatusOK, types.LocationResponse{OK: true, Location: loc})
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req types.LocationRequest
	if !s.decode(w, r, &req) {
		return
	}
	loc, err := s.locations.UpdateLocation(r.Context(), locationFromRequest(r.PathValue("id"), req))
	if err != nil {
		s.writeServiceError(w, r, "update_location", err)
		return
	}
	respond(w, r, http.StatusOK, types.LocationResponse{OK: true, Location: loc})
}

func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := s.locations.DeleteLocation(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, "delete_location", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignStaff(w http.ResponseWriter, r *http.Request) {
	var req types.AssignStaffRequest
	if !s.decode(w, r, &req) {
		return
	}
	loc, err := s.locations.AssignStaffToLocation(r.Context(), r.PathValue("id"), req.StaffIDs)
	if err != nil {
		s.writeServiceError(w, r, "assign_staff", err)
		return
	}
	respond(w, r, http.StatusOK, types.LocationResponse{OK: true, Location: loc})
}

func (s *Server) handleCheckLocation(w http.ResponseWriter, r *http.Request) {
	var req types.CheckLocationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.locations.CheckLocationRestrictions(r.Context(), r.PathValue("id"), req.TimeSpentMinutes); err != nil {
		s.writeServiceError(w, r, "check_location", err)
		return
	}
	respond(w, r, http.StatusOK, types.ValidateResponse{OK: true, Valid: true})
}
