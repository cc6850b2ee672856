// Package faults classifies station failures.
//
// Every failure raised by the card transport, the catalog, or the label
// encoder is tagged with one of the exported markers via Wrap so the station
// controller can map it to a transition without inspecting error strings.
// KindOf reports the marker an error carries.
package faults
