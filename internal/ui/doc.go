// Package ui renders command output for the terminal with lipgloss styles.
//
// Renderers return strings so commands can write them to any [io.Writer]; styles degrade to plain
// text when the output is not a terminal.
package ui
