// Package relay implements the core of the message relay.
//
// Registry tracks live transports and their identities, Engine stores each accepted
// payload and fans it out to every other open transport, and Sweeper periodically
// evicts expired records and announces their deletion to everyone. The three share
// no locks; Registry and the RetentionStore each guard their own state.
package relay
