// Package people is the record repository for the people table and the tool
// bindings that expose it.
//
// Writes report failures as error values; reads are best-effort and degrade
// to an empty result with a logged diagnostic. No store fault escapes as a
// panic.
package people
