// Package permission implements hierarchical permission matching.
//
// Permissions are dot separated segments such as "command.admin.stop".
// A segment of "*" matches any single segment on the other side, and a
// trailing "*" in the granted (base) permission absorbs every deeper
// segment of the checked permission:
//
//	Default("example.*", "example.test.permission")    // true
//	Default("example.*", "example")                    // false
//	Default("example.test", "example.*")               // true
//	Default("example.test.permission", "example.*")    // false
//
// Leading '-' characters are ignored by the matcher. Negative grants are
// interpreted by Set, which layers deny semantics on top of Engine.
package permission
