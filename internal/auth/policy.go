// Package auth holds the access policy, password hashing and session tokens.
package auth

import (
	"ledger/internal/core"
)

// Action names a capability checked by Authorize.
type Action string

const (
	ActionTransactionView   Action = "transaction.view"
	ActionTransactionCreate Action = "transaction.create"
	ActionTransactionUpdate Action = "transaction.update"
	ActionTransactionDelete Action = "transaction.delete"
	ActionUsersManage       Action = "users.manage"
)

// requirement is what an actor needs to perform an action.
type requirement int

const (
	requireUser requirement = iota
	requireOwner
	requireAdmin
)

// capabilities is the whole policy. Owner-only actions have no admin override.
var capabilities = map[Action]requirement{
	ActionTransactionView:   requireUser,
	ActionTransactionCreate: requireUser,
	ActionTransactionUpdate: requireOwner,
	ActionTransactionDelete: requireOwner,
	ActionUsersManage:       requireAdmin,
}

// Authorize reports whether actor may perform action. ownerID is the owner
// of the target resource and is only consulted by owner-only actions.
// Denials are returned as *core.ForbiddenError.
func Authorize(actor core.Actor, action Action, ownerID int64) error {
	req, ok := capabilities[action]
	if !ok || actor.ID == 0 {
		return &core.ForbiddenError{Action: string(action)}
	}
	switch req {
	case requireUser:
		return nil
	case requireOwner:
		if ownerID != 0 && ownerID == actor.ID {
			return nil
		}
	case requireAdmin:
		if actor.IsAdmin() {
			return nil
		}
	}
	return &core.ForbiddenError{Action: string(action)}
}

// Can is Authorize as a boolean, for templates deciding which controls to show.
func Can(actor core.Actor, action Action, ownerID int64) bool {
	return Authorize(actor, action, ownerID) == nil
}
