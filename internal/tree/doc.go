// Package tree walks site directories and accounts for image sizes.
//
// Every traversal in imgopt goes through this package so that the
// definition of a qualifying image and the exclusion rule stay identical
// between the before and after size measurement and the optimization walk.
// Excluded directories are pruned from the traversal itself; their
// subtrees are never descended into.
package tree
