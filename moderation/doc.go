// Verification and rate-moderation engine for group chat servers ("guilds").
//
// This package tree contains a small state engine which gates a member's ability to participate until they answer a challenge question over direct message, and separately detects burst-posting and tags offending members with a marker role. The engine talks to the chat platform only through the capability interface in `moderation/platform`; `moderation/discord` provides the production implementation.
//
// See `cmd/warden` for a daemon built on this package.
package moderation
