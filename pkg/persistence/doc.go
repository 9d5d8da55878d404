// Package persistence stores instrument cache snapshots as JSON files.
//
// A snapshot captures the hierarchical value cache of a component tree
// (the CheckCache output) together with the driver name and a timestamp,
// so a control program can inspect or restore the last known instrument
// state across restarts.
package persistence
