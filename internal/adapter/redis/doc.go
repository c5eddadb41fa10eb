// Package redis provides the Redis-backed retention store and the client
// plumbing around it: metrics and circuit-breaker hooks on every command.
//
// Records live in a hash keyed by message id with a sorted-set index scored
// by arrival time in microseconds. Insert and sweep run as Lua scripts so each
// is atomic with respect to the other.
package redis
