// Package catalog persists bottles, recipe compositions, and station run
// history in SQLite.
//
// The schema is managed with goose migrations embedded in the migrations
// subpackage. The first migration creates the bottle and composition tables
// with IF NOT EXISTS so databases created by earlier station scripts are
// adopted in place. Tagged_Date is NULL or the legacy 0 sentinel until a
// bottle is tagged; new timestamps are written as RFC3339 text in UTC and the
// legacy "YYYY-MM-DD HH:MM:SS" form is read as well.
//
// Store methods wrap failures with faults.ErrStore so station code can route
// them without inspecting driver errors.
package catalog
