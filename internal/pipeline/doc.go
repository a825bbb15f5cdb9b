// Package pipeline runs image files through the optimization steps.
//
// Each file under a site root passes an ordered list of steps: the marker
// check, the dry-run gate, metadata inspection, the backup copy, the
// optimizer call and finally the marker write. A step either records a
// soft failure on the file result and lets the next step run, or ends the
// pipeline for that file.
//
// The Processor handles a single site root with size accounting around a
// bounded pool of workers. The Discoverer decides whether the top root is
// one site or a directory of sites and isolates failures between sites.
package pipeline
