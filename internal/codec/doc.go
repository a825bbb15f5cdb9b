// Package codec runs the external image optimizers.
//
// Each image family maps to exactly one tool:
//
//	jpeg  jpegoptim --strip-all --max=<quality> <file>
//	png   optipng -o<level> <file>
//	gif   gifsicle -O<level> -b <file>
//
// Tools rewrite the file in place. Their output is copied to the run log
// and never parsed: the exit status alone decides success. A failed
// invocation is reported in the Result and never aborts the run.
package codec
