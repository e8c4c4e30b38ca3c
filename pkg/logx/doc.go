// Package logx configures the relay's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable (short timestamp and caller) and file output JSON-structured.
// Lines at or above logging.chat.min_level can also be posted to the relay
// room, rate limited.
package logx
