// Package card defines the contactless card transport contract and the
// block store built on top of it.
//
// Transport is the narrow, enumerated capability a reader driver offers:
// initialize, detect a card, authenticate a block, read a block, write a
// block. Expected outcomes (no card, authentication refused) are reported as
// false results; link and firmware failures are returned as errors marked
// with faults.ErrTransport.
//
// Store applies the domain rule on top of a Transport: every access
// authenticates the block immediately beforehand with DefaultKeyA, and every
// failure surfaces as a *BlockAccessError.
package card
