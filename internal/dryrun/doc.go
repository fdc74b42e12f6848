// Package dryrun defines the run context shared by every dry-run component:
// the immutable Run value, the closed set of entity types with their
// virtual-record tags, and the error taxonomy.
package dryrun
