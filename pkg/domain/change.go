package domain

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// EntityID returns the identifier of the changed record, preferring the
// after-image.
func (c Change) EntityID() string {
	if id := recordID(c.After); id != "" {
		return id
	}
	return recordID(c.Before)
}

func recordID(v any) string {
	switch rec := v.(type) {
	case Supply:
		return rec.ID
	case Planting:
		return rec.ID
	case AnimalGroup:
		return rec.ID
	case ScheduledApplication:
		return rec.ID
	case CashTransaction:
		return rec.ID
	}
	return ""
}
