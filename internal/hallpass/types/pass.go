package types

// PassStatus is the lifecycle status stored on a pass document.
type PassStatus string

const (
	StatusOpen      PassStatus = "open"
	StatusClosed    PassStatus = "closed"
	StatusEscalated PassStatus = "escalated"
)

// PassType selects the transition rules applied to a pass.
type PassType string

const (
	PassRegular  PassType = "regular"
	PassRestroom PassType = "restroom"
	PassParking  PassType = "parking"
)

// Pass is the summary document stored at passes/{id}. Timestamps are epoch
// milliseconds; zero means unset.
type Pass struct {
	ID                string          `json:"id" validate:"required"`
	StudentID         string          `json:"studentId" validate:"required"`
	Status            PassStatus      `json:"status" validate:"required,oneof=open closed escalated"`
	OpenedAt          int64           `json:"openedAt" validate:"required"`
	ClosedAt          int64           `json:"closedAt,omitempty"`
	OriginLocationID  string          `json:"originLocationId" validate:"required"`
	CurrentLocationID string          `json:"currentLocationId,omitempty"`
	IssuedBy          string          `json:"issuedBy" validate:"required"`
	Type              PassType        `json:"type,omitempty" validate:"omitempty,oneof=regular restroom parking"`
	GroupSize         int             `json:"groupSize,omitempty" validate:"gte=0"`
	Archived          bool            `json:"archived,omitempty"`
	ArchivedAt        int64           `json:"archivedAt,omitempty"`
	ForceClosed       bool            `json:"forceClosed,omitempty"`
	AutoClosed        bool            `json:"autoClosed,omitempty"`
	EscalationLevel   EscalationLevel `json:"escalationLevel,omitempty" validate:"omitempty,oneof=warning alert"`
	EscalatedAt       int64           `json:"escalatedAt,omitempty"`
}

// LegDirection is the movement recorded by a leg.
type LegDirection string

const (
	DirectionOut LegDirection = "out"
	DirectionIn  LegDirection = "in"
)

// PassLeg is one immutable out/in movement stored at legs/{passId}/{legId}.
type PassLeg struct {
	LegID      string       `json:"legId" validate:"required"`
	PassID     string       `json:"passId" validate:"required"`
	StudentID  string       `json:"studentId" validate:"required"`
	LocationID string       `json:"locationId" validate:"required"`
	ActorID    string       `json:"actorId" validate:"required"`
	Direction  LegDirection `json:"direction" validate:"required,oneof=out in"`
	LegNumber  int          `json:"legNumber" validate:"required,gte=1"`
	Timestamp  int64        `json:"timestamp" validate:"required"`
}
