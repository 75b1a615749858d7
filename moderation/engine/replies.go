package engine

import (
	"errors"
	"fmt"

	"github.com/wardenbot/warden/moderation/roles"
)

// User-visible text. These strings are part of the engine's contract and are matched verbatim in tests.
const (
	PromptText       = "%s, you must verify your account to send messages. Click the button below to verify."
	PromptButtonText = "Verify Account"

	ReplyAlreadyVerified = "You are already verified."
	ReplyAlreadyPending  = "You already have a verification in progress. Check your direct messages for the question."
	ReplyCheckDMs        = "I sent you a direct message with your verification question."
	ReplyDMFailed        = "I couldn't send you a direct message. Please allow direct messages from server members and click Verify again."
	ReplyStartFailed     = "Something went wrong starting verification. Please try again later."
	ReplyGuildOnly       = "Verification has to be started from inside a server."

	QuestionText = "Verification question: %s\nReply to this message with your answer within %d minutes."

	ReplyIncorrect = "That answer is incorrect. Please try again."
	ReplyExpired   = "Your verification has expired. Please click the Verify Account button in the server to start again."

	ReplyVerified             = "You have been verified! You can now chat in the server."
	ReplyVerifiedNoPrivilege  = "You have been verified, but I could not give you the verified role because I am missing the Manage Roles permission. A server admin needs to grant it."
	ReplyVerifiedHierarchy    = "You have been verified, but I could not give you the verified role because it is positioned above my highest role. A server admin needs to move my role higher."
	ReplyVerifiedRoleDeferred = "You have been verified, but I could not give you the verified role right now. Please contact a server moderator."

	ReplyBurstAssigned        = "Slow down! You sent messages too quickly and have been given the %s role."
	ReplyBurstAlreadyAssigned = "Slow down! You sent messages too quickly. You already have the %s role."
	ReplyBurstNoPrivilege     = "You are sending messages too quickly, but I could not apply the %s role because I am missing the Manage Roles permission. A server admin needs to grant it."
	ReplyBurstHierarchy       = "You are sending messages too quickly, but I could not apply the %s role because it is positioned above my highest role. A server admin needs to move my role higher."
	ReplyBurstFailed          = "You are sending messages too quickly. I could not apply the %s role right now."

	ReplyPong        = "Pong!"
	ReplyOwner       = "Server Owner: %s (ID: %s)"
	ReplyOwnerFailed = "Failed to fetch server owner. Please try again later."

	OwnerSendFailedNotice = "I was unable to post a verification prompt for %s in %s: %s. Please check my Send Messages permission in that channel."
)

// Label for metrics and logs describing the outcome of a role provisioning attempt.
func roleOutcome(res roles.AssignResult, err error) string {
	switch {
	case errors.Is(err, roles.ErrInsufficientPrivilege):
		return "missing-capability"
	case errors.Is(err, roles.ErrHierarchyTooLow):
		return "hierarchy"
	case err != nil:
		return "error"
	default:
		return res.String()
	}
}

func burstReply(roleName string, res roles.AssignResult, err error) string {
	var format string
	switch roleOutcome(res, err) {
	case "assigned":
		format = ReplyBurstAssigned
	case "already-assigned":
		format = ReplyBurstAlreadyAssigned
	case "missing-capability":
		format = ReplyBurstNoPrivilege
	case "hierarchy":
		format = ReplyBurstHierarchy
	default:
		format = ReplyBurstFailed
	}
	return fmt.Sprintf(format, roleName)
}

func verifiedReply(res roles.AssignResult, err error) string {
	switch roleOutcome(res, err) {
	case "assigned", "already-assigned":
		return ReplyVerified
	case "missing-capability":
		return ReplyVerifiedNoPrivilege
	case "hierarchy":
		return ReplyVerifiedHierarchy
	default:
		return ReplyVerifiedRoleDeferred
	}
}
