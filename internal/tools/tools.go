// Package tools implements the BigQuery tools exposed over MCP. Each tool
// declares its argument struct and the JSON schema the router validates
// against before Execute is called.
package tools
