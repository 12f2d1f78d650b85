// Package counter builds the two operations of a counter run and decodes the
// account the program writes: a single little-endian u64 with no header.
package counter
