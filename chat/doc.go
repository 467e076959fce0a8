// Package chat is the Twitch IRC transport.
//
// Client wraps github.com/gempir/go-twitch-irc/v4 and turns raw IRC traffic
// into a small event surface:
//   - OnConnected / OnDisconnected for each connection lifecycle,
//   - OnMessage for PRIVMSG,
//   - OnSub for subscription USERNOTICEs (sub, resub or extension, gifted and community
//     gifted subscriptions),
//   - OnSelfJoin when the bot's own JOIN is echoed back,
//   - OnJoinError when a NOTICE rejects a join (suspended or banned channel).
//
// Run owns reconnects. Every connection gets a fresh IRC client so channels
// are never re-joined implicitly; callers drive joins through Join, typically
// from a throttled join sequence. Only the tags and commands capabilities are
// requested, so JOINs of other users are not delivered.
//
// Credentials: TWITCH_BOT_USERNAME and an OAuth token with chat:read and
// chat:edit scopes (TWITCH_OAUTH_TOKEN, or the token from the settings file).
package chat
