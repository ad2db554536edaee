// Package registry holds the table of worker definitions. Definitions are
// validated and defaulted on registration, copied on every read, and only
// change through Configure.
package registry
