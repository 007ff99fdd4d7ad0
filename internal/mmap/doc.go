// Package mmap provides read-only memory mappings of column segment files.
//
// Column files are append-only and readers never look past the logical EOF
// recorded when they opened the file, so a mapping taken at open time stays
// valid for the lifetime of a scan or fetch.
package mmap
