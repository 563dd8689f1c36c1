// Package account holds the identity record shared by the engine, the flow
// orchestrators, and the persistence adapters.
//
// # Architecture boundaries
//
// Only value types, the [Store] contract, and store-level sentinel errors live
// here. Authentication policy belongs to the flows; SQL and in-memory
// implementations live under store/.
package account
