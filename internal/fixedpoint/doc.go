// Package fixedpoint converts between display amounts and a token's smallest
// indivisible unit.
//
// A display amount a with d decimals is a * 10^d smallest units. All
// arithmetic is integer and overflow-checked; results never wrap.
package fixedpoint
