// Package sharedstore provides the durable boolean store shared between the
// keyboard extension process and its host app through an app group
// container directory.
//
// Within a process, writes are visible to the next read. Across processes a
// reader eventually observes the last committed write; there is no stronger
// ordering. Each backend serializes same-process callers internally, and the
// file backend also takes an advisory flock so two processes never interleave
// a read-modify-write of the data file.
package sharedstore
