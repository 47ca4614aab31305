// Package archive packages a finished mirror directory into a zip file.
//
// Archiving is a pure function over the completed output tree: it runs
// after the crawl has finished and never mutates the tree it reads.
package archive
