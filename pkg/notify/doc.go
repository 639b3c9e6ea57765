// Package notify dispatches a message to one of several registered channels.
//
// A Dispatcher keeps an ordered registry of channels and an optional fallback
// order. Without a fallback order a send goes straight to one channel and
// fails fast. With one, channels are tried strictly in order and the first
// success wins. Send blocks; SendAsync runs the same chain in a goroutine and
// reports through a buffered result channel.
package notify
