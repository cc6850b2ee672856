// Package preflight provides readiness checks for the reader device, the
// catalog, and the filesystem paths a station depends on.
//
// The CLI "tagstation status" command runs RunAll and renders one line per
// check. Checks never change station state: the catalog check only reads an
// existing database and the reader lock check releases the lock it probes.
package preflight
