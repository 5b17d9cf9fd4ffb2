// Package audit records the decision trail of the delegation pipeline.
//
// Every resolved secret, every delegation call, and every authentication
// decision produces exactly one entry. Sinks are append-only; disabling
// auditing means installing the Nop sink, so call sites never branch on
// an enabled flag.
package audit
