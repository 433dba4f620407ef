// Package protocol decodes the daemon's line protocol.
//
// A client sends one command per line and receives exactly one response
// line. Decode turns a line into one of a closed set of Command types
// exactly once; the server dispatches on the concrete type.
//
//	EVENT <type> <path> [extra...]      OK
//	TAG <path> <key> <value...>         OK: Tag added
//	EMBED <path> <type> <base64>        OK: Embedding added
//	QUERY TAG <key>=<value>             RESULT: ["/path", ...]
//	QUERY {json command}                RESULT: ... | OK: ...
//	NLQ <free text>                     RESULT: ... | OK: ... | ECHO: ... | ERR: ...
//	REMOVE_TAG <path> [key]             OK: Tags removed (<n>)
//	DELETE <path>                       OK: File deleted | OK: File not found
//	STATS                               RESULT: {"files":n,...}
//	PING                                OK: PONG
//	HELP                                OK: Commands: ...
//
// Errors are answered as "ERR: <message>".
package protocol
