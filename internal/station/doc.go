// Package station runs the bottle station state machine:
//
//	Init -> AwaitCard -> AccessCard -> Reconcile -> Done | Failed
//
// One Controller serves all three station presets. The Mode selects how
// AccessCard touches the card (read the bottle id, or claim the next
// untagged bottle and write its id) and what Reconcile does with the
// result (look up the composition, render a label, or persist the claim).
//
// Faults during AccessCard send the machine back to AwaitCard for a new
// card. Faults during Init, AwaitCard detection, and Reconcile end the cycle
// in Failed. Done and Failed hand control back to the caller, which decides
// whether to run another cycle on the same reader.
package station
