// Package fs provides the file system abstraction used for column segment
// files.
//
//   - [LocalFS]: production implementation on top of package os
//   - [FaultyFS]: test wrapper injecting write, read, sync and close errors
//
// Operations take no context: local file I/O is not interruptible at the
// syscall level. Remote catalog storage goes through package blobstore.
package fs
