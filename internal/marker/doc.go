// Package marker records which images have already been optimized.
//
// Two stores are provided. SidecarStore writes a small "<file>.optimized"
// file next to each image and is compatible with markers written by earlier
// runs. IndexStore keeps the same information in the history database so
// content directories are left untouched. Callers only see the Store
// interface.
package marker
