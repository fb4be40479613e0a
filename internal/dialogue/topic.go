package dialogue

import (
	"context"

	"github.com/garyellow/moodle-linebot-go/internal/moodle"
	"github.com/garyellow/moodle-linebot-go/internal/stringutil"
)

// Topic is one entry of the fixed menu.
type Topic int

// Menu topics in display order.
const (
	TopicPendingAssignments Topic = iota
	TopicAssignmentGrades
	TopicCourseGrades
	TopicPendingQuizzes
	TopicPendingMessages
	TopicPendingNotifications
	TopicNextWeekEvents
)

// Topics lists every topic in menu order.
var Topics = []Topic{
	TopicPendingAssignments,
	TopicAssignmentGrades,
	TopicCourseGrades,
	TopicPendingQuizzes,
	TopicPendingMessages,
	TopicPendingNotifications,
	TopicNextWeekEvents,
}

type topicInfo struct {
	label string // sent when the menu entry is tapped
	short string // quick reply label, at most 20 runes
	name  string // metrics and logs
}

var topicTable = map[Topic]topicInfo{
	TopicPendingAssignments:   {"Tareas pendientes", "Tareas pendientes", "pending_assignments"},
	TopicAssignmentGrades:     {"Calificaciones tareas", "Notas tareas", "assignment_grades"},
	TopicCourseGrades:         {"Calificaciones asignaturas", "Notas asignaturas", "course_grades"},
	TopicPendingQuizzes:       {"Cuestionarios pendientes", "Cuestionarios", "pending_quizzes"},
	TopicPendingMessages:      {"Mensajes pendientes", "Mensajes pendientes", "pending_messages"},
	TopicPendingNotifications: {"Notificaciones pendientes", "Notificaciones", "pending_notifications"},
	TopicNextWeekEvents:       {"Eventos de la próxima semana", "Eventos semana", "next_week_events"},
}

// topicByText maps normalized full labels to their topic. Short labels are
// display only and never select a topic.
var topicByText = func() map[string]Topic {
	m := make(map[string]Topic, len(topicTable))
	for t, info := range topicTable {
		m[stringutil.Normalize(info.label)] = t
	}
	return m
}()

// shortByLabel maps each full label to its quick reply label.
var shortByLabel = func() map[string]string {
	m := make(map[string]string, len(topicTable))
	for _, info := range topicTable {
		m[info.label] = info.short
	}
	return m
}()

// Label returns the text the menu sends for this topic.
func (t Topic) Label() string { return topicTable[t].label }

// ShortLabel returns the quick reply label for this topic.
func (t Topic) ShortLabel() string { return topicTable[t].short }

// String returns the snake_case topic name.
func (t Topic) String() string {
	if info, ok := topicTable[t]; ok {
		return info.name
	}
	return "unknown"
}

// ParseTopic matches user text against the menu labels after normalization.
// Only exact matches count; there is no fuzzy matching.
func ParseTopic(text string) (Topic, bool) {
	t, ok := topicByText[stringutil.Normalize(text)]
	return t, ok
}

// QuickLabel returns the short label for a menu label, or the text itself otherwise.
func QuickLabel(text string) string {
	if short, ok := shortByLabel[text]; ok {
		return short
	}
	return text
}

// Menu returns the menu layout: topic labels in pairs, the last one alone.
func Menu() [][]string {
	var rows [][]string
	for i := 0; i < len(Topics); i += 2 {
		row := []string{Topics[i].Label()}
		if i+1 < len(Topics) {
			row = append(row, Topics[i+1].Label())
		}
		rows = append(rows, row)
	}
	return rows
}

// query runs the backend operation answering this topic.
func (t Topic) query(ctx context.Context, b Backend, acct moodle.Account) (string, error) {
	switch t {
	case TopicPendingAssignments:
		return b.PendingAssignments(ctx, acct)
	case TopicAssignmentGrades:
		return b.AssignmentGrades(ctx, acct)
	case TopicCourseGrades:
		return b.CourseGrades(ctx, acct)
	case TopicPendingQuizzes:
		return b.PendingQuizzes(ctx, acct)
	case TopicPendingMessages:
		return b.PendingMessages(ctx, acct)
	case TopicPendingNotifications:
		return b.PendingNotifications(ctx, acct)
	case TopicNextWeekEvents:
		return b.NextWeekEvents(ctx, acct)
	default:
		return "", nil
	}
}
