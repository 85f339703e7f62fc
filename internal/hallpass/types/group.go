package types

type GroupType string

const (
	GroupPositive GroupType = "positive"
	GroupNegative GroupType = "negative"
)

// Group is a named set of students that passes can be issued to together.
type Group struct {
	ID                 string    `json:"id" validate:"required"`
	Name               string    `json:"name" validate:"required"`
	Type               GroupType `json:"type" validate:"required,oneof=positive negative"`
	StudentIDs         []string  `json:"studentIds" validate:"dive,required"`
	PermissionOverride bool      `json:"permissionOverride,omitempty"`
}
