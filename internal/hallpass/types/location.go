package types

// Location is a room or area a pass can start at or move to. Restroom
// marks it as a valid destination for restroom passes.
type Location struct {
	ID               string   `json:"id" validate:"required"`
	Name             string   `json:"name" validate:"required"`
	Capacity         int      `json:"capacity,omitempty" validate:"gte=0"`
	CurrentCount     int      `json:"currentCount,omitempty" validate:"gte=0"`
	StaffIDs         []string `json:"staffIds,omitempty" validate:"dive,required"`
	Shared           bool     `json:"shared,omitempty"`
	PlanningBlocked  bool     `json:"planningBlocked,omitempty"`
	RequiresApproval bool     `json:"requiresApproval,omitempty"`
	TimeLimitMinutes int      `json:"timeLimitMinutes,omitempty" validate:"gte=0"`
	Restroom         bool     `json:"restroom,omitempty"`
}
