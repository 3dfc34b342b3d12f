// Package storage persists scheduler run history.
//
// History is for operators only: the scheduler never restores its queue
// from it. Two drivers exist, "file" (JSON lines) and "sqlite".
package storage
