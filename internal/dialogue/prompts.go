package dialogue

import (
	"fmt"
	"strings"

	"github.com/akulikov/regdesk/internal/domain"
)

const helpReply = `I can help you manage your registration:

- Create a registration: "I want to register"
- View your registration: "show my details"
- Update a field: "I need to update my phone number"
- Delete your registration: "delete my account"

What would you like to do?`

const unknownReply = "I'm not sure what you'd like to do.\n\n" + helpReply

const cancelledReply = "Okay, I've cancelled that. Nothing was changed. What else can I do for you?"

const startOverReply = "Something went wrong on my end, so I've reset our conversation. Please start over."

const tooManyAttemptsReply = "That didn't work several times in a row, so I've cancelled the operation. Let's start over whenever you're ready."

const unavailableRetryReply = `Sorry, something went wrong while saving your request. Your answers are kept - say "retry" to try again or "cancel" to discard them.`

const confirmAgainReply = `Please answer "yes" or "no".`

const readyAgainReply = `Say "retry" to try again or "cancel" to discard the operation.`

func createIntro(field string) string {
	return "I'll help you create a new registration. Let's start!\n\n" + promptFor(field)
}

func intentIntro(intent domain.Intent) string {
	switch intent {
	case domain.IntentRead:
		return "I'll retrieve your registration details. What is your email address?"
	case domain.IntentUpdate:
		return "I'll help you update your registration. First, what is your email address?"
	case domain.IntentDelete:
		return "I'll help you delete your registration. What is your email address?"
	default:
		return promptFor(domain.FieldEmail)
	}
}

func promptFor(field string) string {
	return fmt.Sprintf("What is your %s?", domain.FieldLabel(field))
}

func ackPromptFor(field string) string {
	return fmt.Sprintf("Got it! Now, what is your %s?", domain.FieldLabel(field))
}

func validationReply(field, reason string) string {
	return fmt.Sprintf("%s\n\nPlease provide a valid %s:", capitalize(reason), domain.FieldLabel(field))
}

func updateChoicesReply() string {
	var b strings.Builder
	b.WriteString("Which field would you like to update?\n\n")
	for i, f := range domain.UpdatableFields {
		fmt.Fprintf(&b, "%d. %s\n", i+1, capitalize(domain.FieldLabel(f)))
	}
	b.WriteString("\nJust tell me the field name or number:")
	return b.String()
}

func updateChoiceRetryReply() string {
	return "I couldn't identify that field.\n\n" + updateChoicesReply()
}

func newValuePrompt(field string) string {
	return fmt.Sprintf("What is the new value for your %s?", domain.FieldLabel(field))
}

func confirmDeleteReply(email string) string {
	return fmt.Sprintf("Are you sure you want to delete the registration for %s? This cannot be undone. (yes/no)", email)
}

func confirmUpdateReply(field, value string) string {
	return fmt.Sprintf("Set your %s to %q? (yes/no)", domain.FieldLabel(field), value)
}

func duplicateEmailReply(email string) string {
	return fmt.Sprintf("The email %s is already registered. Please provide a different email address:", email)
}

func notFoundReply(email string) string {
	return fmt.Sprintf("I couldn't find a registration for %s. Please check the address and give me the email again:", email)
}

func createdReply(reg *domain.Registration) string {
	return fmt.Sprintf("Your registration was created successfully! Your registration ID is %d.\n\n%s\nWhat else can I help you with?",
		reg.ID, formatRegistration(reg))
}

func readReply(reg *domain.Registration) string {
	return fmt.Sprintf("Here are your registration details:\n\n%s\nRegistered: %s\nLast updated: %s\n\nWhat else can I help you with?",
		formatRegistration(reg),
		reg.CreatedAt.Format("2006-01-02 15:04"),
		reg.UpdatedAt.Format("2006-01-02 15:04"))
}

func updatedReply(reg *domain.Registration, field string) string {
	return fmt.Sprintf("Your %s was updated successfully!\n\n%s\nWhat else can I help you with?",
		domain.FieldLabel(field), formatRegistration(reg))
}

func deletedReply(email string) string {
	return fmt.Sprintf("The registration for %s has been deleted. All of its data has been removed.\n\nIf you need to register again, just let me know!", email)
}

func formatRegistration(reg *domain.Registration) string {
	return fmt.Sprintf("Name: %s\nEmail: %s\nPhone: %s\nDate of birth: %s\nAddress: %s\n",
		reg.FullName, reg.Email, reg.PhoneNumber,
		reg.DateOfBirth.Format("2006-01-02"), reg.Address)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
