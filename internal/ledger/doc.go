// Package ledger implements the investment-trust ledger engine.
//
// The engine registers trust schemes and investors and applies buy, sell
// and transfer operations. A buy or sell updates three coupled counters
// (the scheme's funds raised, the investor's units and the investor's
// available funds) with checked arithmetic and moves the matching token
// value between investor custody and the scheme's escrow vault. Both happen
// in one store transaction.
//
// Record addresses are program-derived:
//
//	configs   ["investment-trusts-configs"]
//	scheme    ["investment-trust-scheme", owner]
//	investor  ["investor", owner]
//	deposit   ["deposit-base", scheme]
//
// Every failure carries an *Error with a stable code; use errors.Is with the
// Err* values or AsError to inspect it.
package ledger
