// Package channel defines the transport contract used by the notify dispatcher.
//
// A Channel owns one transport's delivery mechanics (Telegram, email, webhook,
// or anything user-defined) behind a uniform contract:
//   - Name: the default registry key
//   - ValidateConfig: reports a *ConfigError when settings or recipients are unusable
//   - NormalizeRecipient: converts bare Address values to the channel's native recipient type
//   - Send: delivers a Message to explicit recipients or, when nil, to the defaults
//
// # Recipients
//
// A nil recipient list means "use the channel defaults". A non-nil empty list is
// a deliberate zero-target send and succeeds without contacting the transport.
//
// # Failures
//
// Channels attempt every resolved recipient. Per-recipient failures are collected
// into a single *SendError so no recipient is ever dropped silently.
package channel
