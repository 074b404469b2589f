package extract

import (
	"regexp"
	"strings"
)

var particularsStart = regexp.MustCompile(`(?i)to obligate`)

// stopKeywords end a particulars block when found anywhere in a lowercased line.
var stopKeywords = []string{
	"certified",
	"signature",
	"position",
	"printed name",
	"head",
	"date:",
	"status of obligation",
}

// trailingArtifact matches table columns that bleed into the particulars text:
// long digit runs, amounts with 3+ integer digits and pipe-delimited numbers.
var trailingArtifact = regexp.MustCompile(`\s+\d{10,}|\s+\d{3,}\.\d{2}|\|\s*\d+`)

type collectorState int

const (
	stateIdle collectorState = iota
	stateCollecting
	stateStopped
)

// particularsCollector gathers the "to obligate ..." block line by line.
type particularsCollector struct {
	state  collectorState
	blanks int
	parts  []string
}

func (c *particularsCollector) feed(line string) {
	switch c.state {
	case stateIdle:
		loc := particularsStart.FindStringIndex(line)
		if loc == nil {
			return
		}
		c.parts = append(c.parts, strings.TrimSpace(line[loc[0]:]))
		c.state = stateCollecting

	case stateCollecting:
		lower := strings.ToLower(line)
		for _, kw := range stopKeywords {
			if strings.Contains(lower, kw) {
				c.state = stateStopped
				return
			}
		}
		if line == "" {
			c.blanks++
			if c.blanks >= 2 {
				c.state = stateStopped
			}
			return
		}
		c.blanks = 0
		c.parts = append(c.parts, line)
	}
}

func (c *particularsCollector) result() string {
	joined := strings.Join(c.parts, " ")
	if loc := trailingArtifact.FindStringIndex(joined); loc != nil {
		joined = joined[:loc[0]]
	}
	return strings.TrimSpace(joined)
}

// collectParticulars runs the collector over normalized lines.
func collectParticulars(lines []string) string {
	var c particularsCollector
	for _, line := range lines {
		if c.state == stateStopped {
			break
		}
		c.feed(line)
	}
	return c.result()
}
