// Package store keeps the latest value of every displayed calc channel and
// publishes changes to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [ChannelValue]: Storage representation of a channel's state
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers miss updates rather than block the system).
package store
