package types

// CreatePassRequest carries the inputs to issue a single pass.
type CreatePassRequest struct {
	StudentID          string   `json:"student_id"`
	OriginLocationID   string   `json:"origin_location_id"`
	IssuedBy           string   `json:"issued_by"`
	InitialDestination string   `json:"initial_destination"`
	Type               PassType `json:"type,omitempty"`
	GroupSize          int      `json:"group_size,omitempty"`
}

// MoveRequest is the body of an out or in action.
type MoveRequest struct {
	LocationID string `json:"location_id"`
}

// ValidateRequest asks whether an out/in action would be accepted.
type ValidateRequest struct {
	Action     LegDirection `json:"action"`
	LocationID string       `json:"location_id"`
}

type ValidateResponse struct {
	OK    bool `json:"ok"`
	Valid bool `json:"valid"`
}

type EscalateResponse struct {
	OK    bool            `json:"ok"`
	Level EscalationLevel `json:"level,omitempty"`
}

// GroupPassRequest issues one pass per member of a group.
type GroupPassRequest struct {
	ScheduledLocationID string   `json:"scheduled_location_id"`
	IssuedBy            string   `json:"issued_by"`
	Destination         string   `json:"destination"`
	Type                PassType `json:"type,omitempty"`
}

type GroupPassResponse struct {
	OK      bool   `json:"ok"`
	Passes  []Pass `json:"passes"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type CreateGroupRequest struct {
	Name               string    `json:"name"`
	Type               GroupType `json:"type"`
	StudentIDs         []string  `json:"student_ids"`
	PermissionOverride bool      `json:"permission_override,omitempty"`
}

type AssignStudentsRequest struct {
	StudentIDs []string `json:"student_ids"`
}

type PeriodChangeResponse struct {
	OK     bool   `json:"ok"`
	Closed []Pass `json:"closed"`
}

type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type PassResponse struct {
	OK   bool `json:"ok"`
	Pass Pass `json:"pass"`
}

type LegsResponse struct {
	OK   bool      `json:"ok"`
	Legs []PassLeg `json:"legs"`
}

type GroupResponse struct {
	OK    bool  `json:"ok"`
	Group Group `json:"group"`
}

type GroupsResponse struct {
	OK     bool    `json:"ok"`
	Groups []Group `json:"groups"`
}

// LocationRequest creates or replaces a location.
type LocationRequest struct {
	Name             string   `json:"name"`
	Capacity         int      `json:"capacity,omitempty"`
	CurrentCount     int      `json:"current_count,omitempty"`
	StaffIDs         []string `json:"staff_ids,omitempty"`
	Shared           bool     `json:"shared,omitempty"`
	PlanningBlocked  bool     `json:"planning_blocked,omitempty"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
	TimeLimitMinutes int      `json:"time_limit_minutes,omitempty"`
	Restroom         bool     `json:"restroom,omitempty"`
}

type AssignStaffRequest struct {
	StaffIDs []string `json:"staff_ids"`
}

// CheckLocationRequest asks whether a student may use a location.
// TimeSpentMinutes is only compared against the time limit when set.
type CheckLocationRequest struct {
	TimeSpentMinutes *int `json:"time_spent_minutes,omitempty"`
}

type LocationResponse struct {
	OK       bool     `json:"ok"`
	Location Location `json:"location"`
}

type LocationsResponse struct {
	OK        bool       `json:"ok"`
	Locations []Location `json:"locations"`
}
