package moodle

import (
	"encoding/json"
	"fmt"
)

// Identity is the Moodle account a chat is logged in as.
type Identity struct {
	UserID    int64  `json:"id"`
	FirstName string `json:"firstname"`
	FullName  string `json:"fullname"`
}

// Course is one enrolment of the logged-in user.
type Course struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullname"`
}

// Catalog is the ordered id→name mapping of a user's courses.
type Catalog struct {
	courses []Course
	index   map[int64]int
}

// NewCatalog builds a catalog preserving the given order. Later duplicates of an id are ignored.
func NewCatalog(courses []Course) Catalog {
	c := Catalog{index: make(map[int64]int, len(courses))}
	for _, course := range courses {
		if _, dup := c.index[course.ID]; dup {
			continue
		}
		c.index[course.ID] = len(c.courses)
		c.courses = append(c.courses, course)
	}
	return c
}

// IDs returns the course ids in catalog order.
func (c Catalog) IDs() []int64 {
	ids := make([]int64, len(c.courses))
	for i, course := range c.courses {
		ids[i] = course.ID
	}
	return ids
}

// Name returns the full name of a course, falling back to a generic label for unknown ids.
func (c Catalog) Name(id int64) string {
	if i, ok := c.index[id]; ok {
		return c.courses[i].FullName
	}
	return fmt.Sprintf("Asignatura %d", id)
}

// Courses returns a copy of the courses in catalog order.
func (c Catalog) Courses() []Course {
	return append([]Course(nil), c.courses...)
}

// Len returns the number of courses.
func (c Catalog) Len() int {
	return len(c.courses)
}

// Account is what a topic query needs to know about the logged-in user.
type Account struct {
	UserID  int64
	Courses Catalog
}

// Wire models. Field names follow the Moodle web-service responses.

type assignmentsResponse struct {
	Courses []assignmentCourse `json:"courses"`
}

type assignmentCourse struct {
	ID          int64        `json:"id"`
	FullName    string       `json:"fullname"`
	Assignments []assignment `json:"assignments"`
}

type assignment struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	DueDate int64  `json:"duedate"`
}

type submissionStatus struct {
	LastAttempt *struct {
		Submission *struct {
			Status string `json:"status"`
		} `json:"submission"`
	} `json:"lastattempt"`
}

// submitted reports whether the last attempt is in "submitted" state.
func (s submissionStatus) submitted() bool {
	return s.LastAttempt != nil && s.LastAttempt.Submission != nil &&
		s.LastAttempt.Submission.Status == "submitted"
}

type assignmentGradesResponse struct {
	Assignments []assignmentGrades `json:"assignments"`
}

type assignmentGrades struct {
	AssignmentID int64         `json:"assignmentid"`
	Grades       []assignGrade `json:"grades"`
}

type assignGrade struct {
	UserID int64      `json:"userid"`
	Grade  gradeValue `json:"grade"`
}

type courseGradesResponse struct {
	Grades []courseGrade `json:"grades"`
}

type courseGrade struct {
	CourseID int64      `json:"courseid"`
	Grade    gradeValue `json:"grade"`
}

type quizzesResponse struct {
	Quizzes []quiz `json:"quizzes"`
}

type quiz struct {
	ID        int64  `json:"id"`
	Course    int64  `json:"course"`
	Name      string `json:"name"`
	TimeClose int64  `json:"timeclose"`
}

type bestGrade struct {
	HasGrade bool `json:"hasgrade"`
}

type eventsResponse struct {
	Events []event `json:"events"`
}

type event struct {
	Name      string `json:"name"`
	TimeStart int64  `json:"timestart"`
}

type messagesResponse struct {
	Messages []message `json:"messages"`
}

type message struct {
	Notification     int    `json:"notification"`
	UserFromFullName string `json:"userfromfullname"`
	SmallMessage     string `json:"smallmessage"`
	TimeCreated      int64  `json:"timecreated"`
}

// gradeValue accepts grades sent either as strings ("75,5", "-") or as numbers.
type gradeValue string

func (g *gradeValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*g = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*g = gradeValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("grade: %w", err)
	}
	*g = gradeValue(n.String())
	return nil
}

func decodeJSON(body []byte, out any) error {
	return json.Unmarshal(body, out)
}
