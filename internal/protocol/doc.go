// Package protocol parses the status text machines send in reply to a
// discovery beacon.
//
// # Reply Format
//
// A reply is free-form ASCII made of "Key: value" pairs:
//
//	Status: RUNNING RunningTime: 15.5h Job: bracket-7 Balance: 30s File: prog_12.nc
//
// Recognised keys are Status, RunningTime, Job, Balance and File. Keys
// match in any case, anywhere in the text, with the colon directly after
// the name, so "Job: part_File: x" has Job "part_" and File "x". A value
// runs from the colon to the next recognised key, the next newline or the
// end of the text, and is trimmed. When a key appears more than once the
// first occurrence wins.
//
// Replies come straight off the network. Sanitize drops NUL bytes and
// replaces invalid UTF-8 so the text can be stored in a text column.
//
// # Time Values
//
// RunningTime and Balance are converted to minutes using the last
// character of the raw value:
//
//	15.5h  -> 930
//	30s    -> 0.5
//	42     -> 42
//	42m    -> 42
//
// The numeric part is the longest leading decimal prefix. A value with no
// number, or the literal N/A, yields nil.
//
// # Fallbacks
//
// ParseStatus never fails. A missing Status becomes UNKNOWN; a missing or
// N/A Job or File becomes N/A. FormatStatus produces the same shape and is
// what the simulator sends.
package protocol
