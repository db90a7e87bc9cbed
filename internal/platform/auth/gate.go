package auth

import "errors"

// ErrForbidden is returned when the caller's role set does not allow an
// operation. It deliberately carries no detail about the target resource, so
// a denied caller cannot distinguish "forbidden" from "exists".
var ErrForbidden = errors.New("operation not permitted for caller")

// Roles known to the system. They are resolved by the identity collaborator
// and arrive as labels on the caller; this package never stores them.
const (
	RoleAdmin     = "admin"
	RoleSecretary = "secretary"
	RoleMedic     = "medic"
	RolePatient   = "patient"
)

// Operation identifies a single engine operation for permission checks.
type Operation string

const (
	OpListDay          Operation = "agenda.list_day"
	OpListToday        Operation = "agenda.list_today"
	OpListRange        Operation = "agenda.list_range"
	OpCreateSlot       Operation = "agenda.create_slot"
	OpDeleteSlot       Operation = "agenda.delete_slot"
	OpSearchSpecialty  Operation = "agenda.search_specialty"
	OpSearchName       Operation = "agenda.search_name"
	OpListByClient     Operation = "agenda.list_by_client"
	OpBookSlot         Operation = "agenda.book_slot"
	OpCancelSlot       Operation = "agenda.cancel_slot"
	OpMarkAttended     Operation = "agenda.mark_attended"
	OpMarkPaid         Operation = "agenda.mark_paid"
)

// opRoles is the single declarative mapping of operation to allowed roles.
// A caller must hold at least one of the listed roles; admin always passes.
var opRoles = map[Operation][]string{
	OpListDay:         {RoleSecretary, RolePatient},
	OpListToday:       {RoleSecretary},
	OpListRange:       {RoleSecretary},
	OpCreateSlot:      {RoleSecretary},
	OpDeleteSlot:      {RoleSecretary},
	OpSearchSpecialty: {RolePatient},
	OpSearchName:      {RolePatient},
	OpListByClient:    {RolePatient},
	OpBookSlot:        {RolePatient},
	OpCancelSlot:      {RolePatient, RoleSecretary},
	OpMarkAttended:    {RoleSecretary},
	OpMarkPaid:        {RoleSecretary},
}

// Authorize checks the caller's roles against the operation's allowed set.
// Pure function: no I/O, no side effects. Unknown operations are denied.
func Authorize(caller Caller, op Operation) error {
	allowed, ok := opRoles[op]
	if !ok {
		return ErrForbidden
	}
	for _, has := range caller.Roles {
		if has == RoleAdmin {
			return nil
		}
		for _, want := range allowed {
			if has == want {
				return nil
			}
		}
	}
	return ErrForbidden
}
