package main

import (
	"strings"

	"github.com/fatih/color"

	"github.com/DeafMist/topstories/backend/internal/topstories"
)

const (
	errorMessage          = "An error occurred! Please try again later.\n"
	invalidSectionMessage = "\nYou queried an invalid section!\n"
	greetingMessage       = "Hello from the top stories proxy!\n"
	analyticsErrorMessage = "analytics search is unavailable"
)

// paint forces ANSI output; responses go to remote terminals, not our stdout.
func paint(text string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}

func sectionList() string {
	return strings.Join(topstories.Sections(), "\n") + "\n"
}

func helpText() string {
	return paint("Valid queries:\n"+sectionList(), color.FgGreen)
}

func invalidSectionText() string {
	return paint(invalidSectionMessage, color.FgRed) + helpText()
}

func errorText() string {
	return paint(errorMessage, color.FgRed)
}

func greetingText() string {
	return paint(greetingMessage, color.FgCyan, color.Bold)
}
