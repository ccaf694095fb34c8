// Package mcp serves a tool registry over the Model Context Protocol.
//
// A Server turns JSON-RPC 2.0 requests (initialize, ping, tools/list,
// tools/call) into registry calls. ServeStdio drives it over
// newline-delimited stdin/stdout; SSEHandler drives it over HTTP, either as
// an event stream with a companion POST endpoint or as a synchronous POST
// endpoint. Client and its transports speak the same protocol from the
// caller's side.
package mcp
