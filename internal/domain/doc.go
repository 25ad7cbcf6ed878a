// Package domain contains the core entities of the page-scan service: pages
// and their tokens, scan jobs and their state machine, the structured output
// extracted from recognised text, and the task, calendar and transcript
// records that output is routed into. It has no knowledge of HTTP or SQL.
package domain
