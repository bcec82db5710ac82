// Package entities is the local entity store: one SQLite table per synced
// entity type, each row carrying the business document together with its
// version and sync status.
package entities
