package errors

import (
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, includes additional technical details.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	ee, ok := err.(*EngineError)
	if !ok {
		// Standard error - just return message
		return err.Error()
	}

	var sb strings.Builder

	// Main error message
	sb.WriteString("Error: ")
	sb.WriteString(ee.Message)
	sb.WriteString("\n")

	// Suggestion if available
	if ee.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(ee.Suggestion)
		sb.WriteString("\n")
	}

	// Error code for reference
	sb.WriteString(fmt.Sprintf("\n[%s]", ee.Code))

	if debug {
		if ee.Cause != nil {
			sb.WriteString(fmt.Sprintf("\nCause: %v", ee.Cause))
		}
		for k, v := range ee.Details {
			sb.WriteString(fmt.Sprintf("\n%s: %s", k, v))
		}
	}

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ee, ok := err.(*EngineError)
	if !ok {
		return err.Error()
	}

	if ee.Suggestion != "" {
		return fmt.Sprintf("%s (%s)\n  hint: %s", ee.Message, ee.Code, ee.Suggestion)
	}
	return fmt.Sprintf("%s (%s)", ee.Message, ee.Code)
}
