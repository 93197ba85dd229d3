// Package notify fans rendered report content out to external channels.
//
// Every channel implements the Connector interface (test / text / markdown
// / image); the Dispatcher turns a channel type plus its credential bundle
// into the matching Connector, rejecting unknown types and missing
// credentials at construction time so misconfiguration surfaces when a
// subscription is saved, not when it fires.
package notify
