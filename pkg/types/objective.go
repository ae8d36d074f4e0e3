package types

// Objective represents a team PI-planning commitment pulled from TargetProcess.
// Status is preserved verbatim as the remote reports it. An Effort of zero is
// meaningful: it marks an unestimated objective and must survive round-trips.
type Objective struct {
	ID          int
	Name        string
	Status      string
	Effort      int
	Owner       string
	Description string
	Epics       []Epic
}

// Epic is a work item owned by exactly one Objective. Effort is nil when the
// remote item carries no estimate.
type Epic struct {
	ID     int
	Name   string
	Status string
	Effort *int
	Owner  string
}

// ProgramObjective is a read-only reference entry rendered alongside team
// objectives; it is never pushed back to the remote.
type ProgramObjective struct {
	ID     int
	Name   string
	Status string
}
