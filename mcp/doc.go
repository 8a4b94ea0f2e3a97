// Package mcp contains the Model Context Protocol wire types and method names
// served by this module: lifecycle, tools, prompts and the (empty) resource
// listings. Transports import these types and implement their own framing.
package mcp
