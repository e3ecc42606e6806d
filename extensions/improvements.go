// Package extensions holds code appended or rewritten at runtime by the
// self-modification engine. Only files matched by selfmod.allow_list may change.
package extensions

// Version counts the revisions of this file made by hand
const Version = 1
