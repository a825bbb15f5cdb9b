// Package model defines the core data structures used throughout imgopt.
//
// This package contains the following main types:
//   - ImageFile: A qualifying image discovered under a site root
//   - FileResult: The explicit outcome of processing one image
//   - SiteSummary: Before/after accounting for one site root
//   - RunReport: All site summaries of a single invocation
//
// Models live in their own package so that pipeline, report, and database
// can share them without import cycles. All of them serialize to JSON for
// report output and history storage.
package model
