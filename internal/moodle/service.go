package moodle

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domerrors "github.com/garyellow/moodle-linebot-go/internal/errors"
)

// Caller invokes a Moodle web-service function. *Client implements it.
type Caller interface {
	Call(ctx context.Context, function string, params url.Values, out any) error
}

// ServiceOptions tunes a Service. Zero values get sensible defaults.
type ServiceOptions struct {
	Location    *time.Location   // Time zone used to render dates (default: time.Local)
	Concurrency int              // Parallel per-item status checks (default: 4)
	Now         func() time.Time // Clock (default: time.Now)
}

// Service answers the login and menu-topic queries on top of the web-service API.
// Every operation is a fixed sequence of read-only calls; nothing is cached here.
type Service struct {
	client      Caller
	loc         *time.Location
	concurrency int
	now         func() time.Time
}

// NewService creates a Service using the given caller.
func NewService(client Caller, opts ServiceOptions) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		client:      client,
		loc:         opts.Location,
		concurrency: opts.Concurrency,
		now:         opts.Now,
	}
}

// Login looks a user up by username.
// No match, several matches or a Moodle exception all yield errors.ErrLoginFailed.
func (s *Service) Login(ctx context.Context, username string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domerrors.ErrLoginFailed
	}

	params := url.Values{}
	params.Set("field", "username")
	params.Set("values[0]", username)

	var users []Identity
	if err := s.client.Call(ctx, "core_user_get_users_by_field", params, &users); err != nil {
		if me, ok := domerrors.AsMoodleError(err); ok && !me.IsInvalidToken() {
			return nil, fmt.Errorf("%w: %v", domerrors.ErrLoginFailed, me)
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if len(users) != 1 {
		return nil, domerrors.ErrLoginFailed
	}
	return &users[0], nil
}

// Courses returns the courses the user is enrolled in, in backend order.
func (s *Service) Courses(ctx context.Context, userID int64) (Catalog, error) {
	params := url.Values{}
	params.Set("userid", formatID(userID))

	var courses []Course
	if err := s.client.Call(ctx, "core_enrol_get_users_courses", params, &courses); err != nil {
		return Catalog{}, fmt.Errorf("courses: %w", err)
	}
	return NewCatalog(courses), nil
}

// PendingAssignments lists assignments due strictly in the future that the user has not submitted.
func (s *Service) PendingAssignments(ctx context.Context, acct Account) (string, error) {
	if acct.Courses.Len() == 0 {
		return NoPendingAssignments, nil
	}
	courses, err := s.assignments(ctx, acct.Courses)
	if err != nil {
		return "", err
	}

	now := s.now()
	var open []assignment
	for _, c := range courses {
		for _, a := range c.Assignments {
			if time.Unix(a.DueDate, 0).After(now) {
				open = append(open, a)
			}
		}
	}

	submitted, err := s.submittedSet(ctx, acct.UserID, open)
	if err != nil {
		return "", err
	}

	var blocks []string
	for _, c := range courses {
		var items []string
		for _, a := range c.Assignments {
			if !time.Unix(a.DueDate, 0).After(now) || submitted[a.ID] {
				continue
			}
			items = append(items, fmt.Sprintf("%s. Fecha límite: %s", a.Name, formatDate(a.DueDate, s.loc)))
		}
		if len(items) > 0 {
			blocks = append(blocks, section(fmt.Sprintf("En la asignatura %s tienes pendientes de entregar las tareas:", c.FullName), items))
		}
	}

	if len(blocks) == 0 {
		return NoPendingAssignments, nil
	}
	return strings.Join(blocks, "\n\n"), nil
}

// AssignmentGrades lists submitted assignments that have a grade recorded for the user.
func (s *Service) AssignmentGrades(ctx context.Context, acct Account) (string, error) {
	if acct.Courses.Len() == 0 {
		return NoGradedAssignments, nil
	}
	courses, err := s.assignments(ctx, acct.Courses)
	if err != nil {
		return "", err
	}

	var all []assignment
	for _, c := range courses {
		all = append(all, c.Assignments...)
	}
	submitted, err := s.submittedSet(ctx, acct.UserID, all)
	if err != nil {
		return "", err
	}

	var ids []int64
	for _, a := range all {
		if submitted[a.ID] {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		return NoGradedAssignments, nil
	}

	params := url.Values{}
	for i, id := range ids {
		params.Set(fmt.Sprintf("assignmentids[%d]", i), formatID(id))
	}
	var resp assignmentGradesResponse
	if err := s.client.Call(ctx, "mod_assign_get_grades", params, &resp); err != nil {
		return "", fmt.Errorf("assignment grades: %w", err)
	}

	grades := make(map[int64]string)
	for _, ag := range resp.Assignments {
		for _, g := range ag.Grades {
			if g.UserID != acct.UserID {
				continue
			}
			// Moodle stores -1 for "no grade yet"
			if v, ok := parseGrade(string(g.Grade)); ok && v >= 0 {
				grades[ag.AssignmentID] = formatGrade(string(g.Grade))
			}
		}
	}

	var blocks []string
	for _, c := range courses {
		var items []string
		for _, a := range c.Assignments {
			if grade, ok := grades[a.ID]; ok && submitted[a.ID] {
				items = append(items, fmt.Sprintf("%s: %s", a.Name, grade))
			}
		}
		if len(items) > 0 {
			blocks = append(blocks, section(fmt.Sprintf("En la asignatura %s tienes las siguientes tareas clasificadas:", c.FullName), items))
		}
	}

	if len(blocks) == 0 {
		return NoGradedAssignments, nil
	}
	return strings.Join(blocks, "\n"), nil
}

// CourseGrades lists the overall grade of every course in the grade overview report.
func (s *Service) CourseGrades(ctx context.Context, acct Account) (string, error) {
	params := url.Values{}
	params.Set("userid", formatID(acct.UserID))

	var resp courseGradesResponse
	if err := s.client.Call(ctx, "gradereport_overview_get_course_grades", params, &resp); err != nil {
		return "", fmt.Errorf("course grades: %w", err)
	}
	if len(resp.Grades) == 0 {
		return NoGradedCourses, nil
	}

	items := make([]string, 0, len(resp.Grades))
	for _, g := range resp.Grades {
		items = append(items, fmt.Sprintf("%s: %s", acct.Courses.Name(g.CourseID), formatGrade(string(g.Grade))))
	}
	return section("Las clasificaciones de tus asignaturas son:", items), nil
}

// PendingQuizzes lists quizzes still open (or without close time) that the user has no grade for.
func (s *Service) PendingQuizzes(ctx context.Context, acct Account) (string, error) {
	if acct.Courses.Len() == 0 {
		return NoPendingQuizzes, nil
	}

	params := url.Values{}
	for i, id := range acct.Courses.IDs() {
		params.Set(fmt.Sprintf("courseids[%d]", i), formatID(id))
	}
	var resp quizzesResponse
	if err := s.client.Call(ctx, "mod_quiz_get_quizzes_by_courses", params, &resp); err != nil {
		return "", fmt.Errorf("quizzes: %w", err)
	}

	now := s.now()
	var open []quiz
	for _, q := range resp.Quizzes {
		if q.TimeClose == 0 || time.Unix(q.TimeClose, 0).After(now) {
			open = append(open, q)
		}
	}

	graded := make([]bool, len(open))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, q := range open {
		g.Go(func() error {
			p := url.Values{}
			p.Set("quizid", formatID(q.ID))
			p.Set("userid", formatID(acct.UserID))
			var best bestGrade
			if err := s.client.Call(gctx, "mod_quiz_get_user_best_grade", p, &best); err != nil {
				return fmt.Errorf("quiz %d best grade: %w", q.ID, err)
			}
			graded[i] = best.HasGrade
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	// Group by course in order of first appearance
	var order []int64
	byCourse := make(map[int64][]string)
	for i, q := range open {
		if graded[i] {
			continue
		}
		if _, seen := byCourse[q.Course]; !seen {
			order = append(order, q.Course)
		}
		var item string
		if q.TimeClose != 0 {
			item = fmt.Sprintf("%s. Fecha límite: %s", q.Name, formatDate(q.TimeClose, s.loc))
		} else {
			item = fmt.Sprintf("%s. Sin fecha límite.", q.Name)
		}
		byCourse[q.Course] = append(byCourse[q.Course], item)
	}

	if len(order) == 0 {
		return NoPendingQuizzes, nil
	}
	blocks := make([]string, 0, len(order))
	for _, courseID := range order {
		blocks = append(blocks, section(fmt.Sprintf("En la asignatura %s tienes los siguientes cuestionarios pendientes:", acct.Courses.Name(courseID)), byCourse[courseID]))
	}
	return strings.Join(blocks, "\n"), nil
}

// NextWeekEvents lists calendar events of the user's courses starting within the next 7 days.
func (s *Service) NextWeekEvents(ctx context.Context, acct Account) (string, error) {
	if acct.Courses.Len() == 0 {
		return NoNextWeekEvents, nil
	}

	now := s.now()
	params := url.Values{}
	params.Set("options[timestart]", strconv.FormatInt(now.Unix(), 10))
	params.Set("options[timeend]", strconv.FormatInt(now.AddDate(0, 0, 7).Unix(), 10))
	for i, id := range acct.Courses.IDs() {
		params.Set(fmt.Sprintf("events[courseids][%d]", i), formatID(id))
	}

	var resp eventsResponse
	if err := s.client.Call(ctx, "core_calendar_get_calendar_events", params, &resp); err != nil {
		return "", fmt.Errorf("calendar events: %w", err)
	}
	if len(resp.Events) == 0 {
		return NoNextWeekEvents, nil
	}

	events := slices.Clone(resp.Events)
	slices.SortStableFunc(events, func(a, b event) int {
		return cmp.Compare(a.TimeStart, b.TimeStart)
	})

	items := make([]string, 0, len(events))
	for _, e := range events {
		items = append(items, fmt.Sprintf("%s: finaliza el %s", e.Name, formatDate(e.TimeStart, s.loc)))
	}
	return section("En la próxima semana tienes los siguientes eventos:", items), nil
}

// PendingMessages lists unread personal messages, oldest first.
func (s *Service) PendingMessages(ctx context.Context, acct Account) (string, error) {
	msgs, err := s.unread(ctx, acct.UserID, 0)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return NoPendingMessages, nil
	}

	slices.SortStableFunc(msgs, func(a, b message) int {
		return cmp.Compare(a.TimeCreated, b.TimeCreated)
	})

	items := make([]string, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, fmt.Sprintf("%s [%s]: \"%s\".", m.UserFromFullName, formatDateTime(m.TimeCreated, s.loc), plainText(m.SmallMessage)))
	}
	return section("Tienes los siguientes mensajes sin leer:", items), nil
}

// PendingNotifications lists unread notifications in backend order.
func (s *Service) PendingNotifications(ctx context.Context, acct Account) (string, error) {
	msgs, err := s.unread(ctx, acct.UserID, 1)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return NoPendingNotifications, nil
	}

	items := make([]string, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, fmt.Sprintf("[%s] %s.", formatDateTime(m.TimeCreated, s.loc), plainText(m.SmallMessage)))
	}
	return section("Tienes las siguientes notificaciones sin leer:", items), nil
}

// unread fetches unread messages for the user and keeps those with the given notification flag.
func (s *Service) unread(ctx context.Context, userID int64, notification int) ([]message, error) {
	params := url.Values{}
	params.Set("useridto", formatID(userID))
	params.Set("read", "0")

	var resp messagesResponse
	if err := s.client.Call(ctx, "core_message_get_messages", params, &resp); err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}

	var out []message
	for _, m := range resp.Messages {
		if m.Notification == notification {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Service) assignments(ctx context.Context, courses Catalog) ([]assignmentCourse, error) {
	params := url.Values{}
	for i, id := range courses.IDs() {
		params.Set(fmt.Sprintf("courseids[%d]", i), formatID(id))
	}
	params.Set("includenotenrolledcourses", "1")

	var resp assignmentsResponse
	if err := s.client.Call(ctx, "mod_assign_get_assignments", params, &resp); err != nil {
		return nil, fmt.Errorf("assignments: %w", err)
	}
	return resp.Courses, nil
}

// submittedSet checks the submission status of each assignment concurrently.
func (s *Service) submittedSet(ctx context.Context, userID int64, list []assignment) (map[int64]bool, error) {
	results := make([]bool, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, a := range list {
		g.Go(func() error {
			params := url.Values{}
			params.Set("userid", formatID(userID))
			params.Set("assignid", formatID(a.ID))
			var status submissionStatus
			if err := s.client.Call(gctx, "mod_assign_get_submission_status", params, &status); err != nil {
				return fmt.Errorf("assignment %d submission status: %w", a.ID, err)
			}
			results[i] = status.submitted()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := make(map[int64]bool, len(list))
	for i, a := range list {
		if results[i] {
			set[a.ID] = true
		}
	}
	return set, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
