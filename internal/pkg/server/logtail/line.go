// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package logtail

import (
	"strings"
)

// Severity is the tag the server prints in front of every error log message.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeveritySystem
	SeverityError
	SeverityWarning
	SeverityNote
)

var severityTags = []struct {
	tag      string
	severity Severity
}{
	{"[System]", SeveritySystem},
	{"[ERROR]", SeverityError},
	{"[Error]", SeverityError},
	{"[Warning]", SeverityWarning},
	{"[Note]", SeverityNote},
}

func (s Severity) String() string {
	switch s {
	case SeveritySystem:
		return "System"
	case SeverityError:
		return "Error"
	case SeverityWarning:
		return "Warning"
	case SeverityNote:
		return "Note"
	default:
		return "Unknown"
	}
}

// Line is one classified error log line.
type Line struct {
	Severity Severity
	Text     string
}

// ParseLine classifies text by the first severity tag it contains.
func ParseLine(text string) Line {
	text = strings.TrimRight(text, "\r\n")
	best, sev := -1, SeverityUnknown
	for _, t := range severityTags {
		if idx := strings.Index(text, t.tag); idx >= 0 && (best < 0 || idx < best) {
			best, sev = idx, t.severity
		}
	}
	return Line{Severity: sev, Text: text}
}
