// Package agent answers natural-language questions over the indexed
// document base. Incoming questions are routed by a pattern-table
// classifier: greetings and smalltalk go straight to the completion
// model, everything else is grounded in fragments retrieved with
// diversity-aware search and answered with a citation list.
package agent
