package moodle

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	dateLayout     = "02/01/06"
	dateTimeLayout = "02/01/06 15:04"

	ungraded = "Sin clasificar"
)

// Texts shown when a topic has nothing to report.
const (
	NoPendingAssignments   = "No tienes tareas pendientes de entregar"
	NoGradedAssignments    = "No tienes tareas calificadas"
	NoGradedCourses        = "No tienes asignaturas calificadas"
	NoPendingQuizzes       = "No tienes cuestionarios pendientes"
	NoPendingMessages      = "No tienes mensajes sin leer"
	NoPendingNotifications = "No tienes notificaciones sin leer"
	NoNextWeekEvents       = "No tienes eventos en la próxima semana"
)

// formatGrade renders a Moodle grade on the 0-10 scale.
// "-" means ungraded; otherwise the comma decimal separator is accepted and the
// 0-100 value is divided by 10. Unparsable values are shown as received.
func formatGrade(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "-" {
		return ungraded
	}
	v, ok := parseGrade(raw)
	if !ok {
		return raw
	}
	return strconv.FormatFloat(v/10, 'f', -1, 64)
}

// parseGrade parses a 0-100 grade, accepting "," as decimal separator.
func parseGrade(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatDate(ts int64, loc *time.Location) string {
	return time.Unix(ts, 0).In(loc).Format(dateLayout)
}

func formatDateTime(ts int64, loc *time.Location) string {
	return time.Unix(ts, 0).In(loc).Format(dateTimeLayout)
}

// plainText strips HTML markup from a message body and collapses whitespace.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// section renders a header line followed by one bullet per item.
func section(header string, items []string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, item := range items {
		b.WriteString("\n• ")
		b.WriteString(item)
	}
	return b.String()
}
