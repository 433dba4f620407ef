// Package nlq is the natural-language front-end of the daemon.
//
// Handler.Handle turns one free-text request into one response line. It
// asks the oracle for a structured command, executes it with the query
// engine, and degrades gracefully when anything goes wrong:
//
//	oracle answered with a command    -> executed, RESULT:/OK: line
//	oracle answered with other text   -> "ECHO: <text>"
//	oracle unset, failing, or limited -> local keyword parser
//	keyword parser found no command   -> "ERR: Could not parse NLQ"
//
// Handle never returns an error and never panics.
package nlq
