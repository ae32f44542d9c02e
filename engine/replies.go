package engine

import (
	"fmt"
	"strings"
)

// All user-visible failure and success texts. Every reply is a single
// chat line in the conversation that caused it; no error ever reaches
// the user as a raw Go error.
const (
	replyAdminOnly = "❌ This command is for group admins only."
	replyGroupOnly = "⚠️ This command only works in group conversations."
	replyShutdown  = "🛑 Shutting down. Goodbye."
	replyOpened    = "🔓 Conversation opened. Triggers are active again."
	replyClosed    = "🔒 Conversation closed. Triggers are paused."
	replyWelcome   = "✅ Welcome message saved."
	replyBye       = "✅ Goodbye message saved."
	replyNoLists   = "ℹ️ No lists stored for this conversation."

	replyMissingContent = "⚠️ Nothing to save. Provide content, attach media, or reply to a message."
	replyStoreError     = "⚠️ Something went wrong. Please try again."
)

func usageReply(prefix, command, grammar string) string {
	return fmt.Sprintf("⚠️ Usage: %s%s %s", prefix, command, grammar)
}

func addedReply(keyword string) string {
	return fmt.Sprintf("✅ List '%s' added.", keyword)
}

func updatedReply(keyword string) string {
	return fmt.Sprintf("♻️ List '%s' updated.", keyword)
}

func deletedReply(keyword string) string {
	return fmt.Sprintf("🗑️ List '%s' deleted.", keyword)
}

func existsReply(keyword, prefix string) string {
	return fmt.Sprintf("⚠️ List '%s' already exists. Use %supdatelist to change it.", keyword, prefix)
}

func notFoundReply(keyword string) string {
	return fmt.Sprintf("❌ List '%s' not found.", keyword)
}

func keywordListReply(keywords []string) string {
	if len(keywords) == 0 {
		return replyNoLists
	}
	var b strings.Builder
	b.WriteString("📋 Stored lists:")
	for _, keyword := range keywords {
		b.WriteString("\n• ")
		b.WriteString(keyword)
	}
	return b.String()
}
