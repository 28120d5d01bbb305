package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

const registrationPromptText = "Hi!\n" +
	"You've requested access to one of our TestFlights, but we don't have your email on file.\n" +
	"Please reply and use the command `/testflight register` to register your details"

func rulesReminderText(rulesLink string) string {
	rules := "rules"
	if rulesLink != "" {
		rules += " (" + rulesLink + ")"
	}
	return "Hi!\n" +
		"You've requested access to one of our TestFlights, but have not agreed to the " + rules + ".\n" +
		"Please make sure you agree to the rules before requesting access to a TestFlight."
}

func closedBetasText(requested, closed []string, messageLink string) string {
	return fmt.Sprintf("Hi!\n"+
		"You've requested access to %s, but betas are not open for %s.\n"+
		"Please only react with emojis for apps listed in [the message](%s).",
		strings.Join(requested, ", "), strings.Join(closed, ", "), messageLink)
}

func approvedText(request *domain.TestingRequest, tester *domain.Tester) string {
	return fmt.Sprintf("Hi again!\n"+
		"Your request to test **%s** has been approved.\n"+
		"A TestFlight invite should have been sent to `%s`",
		request.AppName, tester.Email)
}

// relativeTime renders a timestamp the client shows as "2 hours ago"
func relativeTime(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

// repeatNoticeText heads a notification for a request that was already
// notified. originalLink may be empty when the first message is gone.
func repeatNoticeText(request *domain.TestingRequest, originalLink string) string {
	var b strings.Builder
	b.WriteString("_This is a repeat request. Original request")
	if originalLink != "" {
		b.WriteString(" " + originalLink)
	}
	b.WriteString(" was " + relativeTime(request.Created) + "_\n")
	if request.IsApproved() {
		b.WriteString("**This request was already approved**\n")
	}
	return b.String()
}

func requestNotificationText(mention string, request *domain.TestingRequest, tester *domain.Tester) string {
	return fmt.Sprintf("%s wants access to **%s**\nName: %s\nEmail: %s\nRequest: `%s`",
		mention, request.AppName, tester.FullName(), tester.Email, request.ID)
}

func testerLeftText(userID string, appNames []string) string {
	return fmt.Sprintf("%s is testing %s but has left the server!",
		domain.MentionUser(userID), strings.Join(appNames, ", "))
}

func noRequestText(mention, kind, emoji string) string {
	return fmt.Sprintf("%s Received %s reaction '%s' but no testing requests found for this message!",
		mention, kind, emoji)
}

func distributionErrorText(mention string, de *domain.DistributionError, appName string) string {
	switch de.Kind {
	case domain.DistributionErrorCredentialsNotConfigured:
		return fmt.Sprintf("%s No API key is set for %s, unable to update testers automatically", mention, appName)
	case domain.DistributionErrorGroupNotConfigured:
		return fmt.Sprintf("%s No Beta Group is set for %s, unable to update testers automatically", mention, appName)
	case domain.DistributionErrorInvalidAttribute:
		return fmt.Sprintf("%s Tester has an attribute considered invalid by App Store Connect: `%s`. Unable to add tester automatically",
			mention, de.Details)
	default:
		return fmt.Sprintf("%s App Store Connect request failed for %s: %v", mention, appName, de)
	}
}
