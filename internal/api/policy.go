package api

import "github.com/transfa/ledger-service/internal/domain"

// CanTransferFrom reports whether actor may move funds out of account.
func CanTransferFrom(actor domain.Actor, account domain.Account) bool {
	return account.OwnerID == actor.ID || actor.HasPermission(domain.PermissionTransactionCreate)
}

// CanReadAccount reports whether actor may see account and its history.
func CanReadAccount(actor domain.Actor, account domain.Account) bool {
	return account.OwnerID == actor.ID || actor.HasPermission(domain.PermissionBankAccountRead)
}

// CanReadTransaction reports whether actor may see a transaction between source and destination.
func CanReadTransaction(actor domain.Actor, source, destination domain.Account) bool {
	if actor.HasPermission(domain.PermissionTransactionRead) {
		return true
	}
	return source.OwnerID == actor.ID || destination.OwnerID == actor.ID
}

// CanListTransactions reports whether actor may page through every transaction.
func CanListTransactions(actor domain.Actor) bool {
	return actor.HasPermission(domain.PermissionTransactionRead)
}
