package taskwriter

import (
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/usermap"
)

// Property is one typed destination-property value, shaped by a
// FieldMapping's propertyType.
type Property struct {
	DestProperty string
	PropertyType string
	Value        any
}

// Payload is the page body the knowledge-base client renders (§4.3):
// title, summary callout, action-item checklist, collapsible context block,
// participant paragraph, transcript, metadata list, and source deep-link.
type Payload struct {
	Title            string
	SummaryText      string
	ActionItems      []string
	KeyPoints        []string
	ParticipantsText string
	Transcript       []string
	Metadata         []string
	SourceURL        string
	Properties       []Property
	IsMultiTaskChild bool
	TaskIndex        int
}

func buildPayload(task domain.Task, thread Thread, summary domain.Summary, mapping map[string]domain.FieldMapping, mentions *usermap.Snapshot, index int, multi bool) Payload {
	p := Payload{
		Title:            task.Title,
		SummaryText:      summary.Text,
		ActionItems:      task.ActionItems,
		KeyPoints:        summary.KeyPoints,
		ParticipantsText: renderParticipants(thread.Participants, mentions),
		Transcript:       renderTranscript(thread.AllMessages),
		SourceURL:        thread.SourceURL,
		IsMultiTaskChild: multi,
		TaskIndex:        index,
	}

	p.Metadata = []string{
		fmt.Sprintf("source: %s", thread.SourceType),
		fmt.Sprintf("replyCount: %d", maxInt(0, len(thread.AllMessages)-1)),
		fmt.Sprintf("createdAt: %s", time.Now().UTC().Format(time.RFC3339)),
	}
	if summary.Sentiment != nil {
		p.Metadata = append(p.Metadata, "sentiment: "+*summary.Sentiment)
	}
	if summary.Confidence != nil {
		p.Metadata = append(p.Metadata, fmt.Sprintf("confidence: %.2f", *summary.Confidence))
	}

	p.Properties = applyFieldMapping(task, mapping, mentions)
	return p
}

// applyFieldMapping renders each AI-populated canonical field onto its
// mapped destination property, applying valueMap when the destination is a
// closed-enum ("select") property.
func applyFieldMapping(task domain.Task, mapping map[string]domain.FieldMapping, mentions *usermap.Snapshot) []Property {
	var props []Property

	add := func(field string, value *string) {
		fm, ok := mapping[field]
		if !ok || value == nil {
			return
		}
		props = append(props, Property{
			DestProperty: fm.DestProperty,
			PropertyType: fm.PropertyType,
			Value:        mapValue(fm, *value),
		})
	}

	if task.Priority != nil {
		v := string(*task.Priority)
		add("priority", &v)
	}
	if task.Type != nil {
		v := string(*task.Type)
		add("type", &v)
	}
	if task.DueDate != nil {
		add("dueDate", task.DueDate)
	}
	if fm, ok := mapping["tags"]; ok && len(task.Tags) > 0 {
		props = append(props, Property{DestProperty: fm.DestProperty, PropertyType: fm.PropertyType, Value: task.Tags})
	}
	if fm, ok := mapping["assignee"]; ok && task.Assignee != nil {
		value := *task.Assignee
		if fm.PropertyType == "people" {
			if entry, found := mentions.ByUserID(value); found {
				value = entry.DestUserID
			}
		}
		props = append(props, Property{DestProperty: fm.DestProperty, PropertyType: fm.PropertyType, Value: value})
	}

	return props
}

func mapValue(fm domain.FieldMapping, value string) string {
	if fm.PropertyType != "select" || fm.ValueMap == nil {
		return value
	}
	if mapped, ok := fm.ValueMap[value]; ok {
		return mapped
	}
	return value
}

// renderParticipants renders each participant as a resolved mention
// "@{displayName} ({destUserId})" or a literal "@{sourceUserId}" fallback.
func renderParticipants(participants []string, mentions *usermap.Snapshot) string {
	var parts []string
	for _, p := range participants {
		if p == "" {
			continue
		}
		if entry, ok := mentions.ByUserID(p); ok {
			parts = append(parts, fmt.Sprintf("@%s (%s)", entry.DisplayName, entry.DestUserID))
			continue
		}
		parts = append(parts, "@"+p)
	}
	return strings.Join(parts, ", ")
}

func renderTranscript(messages []domain.Message) []string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.AuthorHandle, m.Content))
	}
	return lines
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
