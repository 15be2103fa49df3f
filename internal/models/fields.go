package models

// Field names a writable Task attribute by its wire key.
type Field string

const (
	FieldTitle                Field = "title"
	FieldDesc                 Field = "desc"
	FieldNote                 Field = "note"
	FieldStartDate            Field = "startDate"
	FieldAssignDate           Field = "assignDate"
	FieldExpectedDeliveryDate Field = "expectedDeliveryDate"
	FieldActualDeliveryDate   Field = "actualDeliveryDate"
	FieldAssignee             Field = "assignee"
	FieldStatus               Field = "status"
	FieldPriority             Field = "priority"
)

// TaskFields lists every writable Task field.
func TaskFields() []Field {
	return []Field{
		FieldTitle, FieldDesc, FieldNote,
		FieldStartDate, FieldAssignDate, FieldExpectedDeliveryDate, FieldActualDeliveryDate,
		FieldAssignee, FieldStatus, FieldPriority,
	}
}

func (f Field) Known() bool {
	for _, k := range TaskFields() {
		if k == f {
			return true
		}
	}
	return false
}

// Column returns the tasks table column backing f.
func (f Field) Column() string {
	switch f {
	case FieldStartDate:
		return "start_date"
	case FieldAssignDate:
		return "assign_date"
	case FieldExpectedDeliveryDate:
		return "expected_delivery_date"
	case FieldActualDeliveryDate:
		return "actual_delivery_date"
	case FieldAssignee:
		return "assignee_id"
	default:
		return string(f)
	}
}
