package domain

import "github.com/google/uuid"

// Permissions understood by the request-layer policy.
const (
	PermissionTransactionCreate = "TRANSACTION_CREATE"
	PermissionTransactionRead   = "TRANSACTION_READ"
	PermissionBankAccountRead   = "BANK_ACCOUNT_READ"
)

// Actor is the authenticated caller. It is always passed explicitly.
type Actor struct {
	ID          uuid.UUID
	Permissions []string
}

// HasPermission reports whether the actor was granted permission.
func (a Actor) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
