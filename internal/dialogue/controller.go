// Package dialogue implements the per-chat conversation: login by username,
// the fixed topic menu and the LLM fallback for anything else.
package dialogue

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/garyellow/moodle-linebot-go/internal/ctxutil"
	domerrors "github.com/garyellow/moodle-linebot-go/internal/errors"
	"github.com/garyellow/moodle-linebot-go/internal/logger"
	"github.com/garyellow/moodle-linebot-go/internal/metrics"
	"github.com/garyellow/moodle-linebot-go/internal/moodle"
	"github.com/garyellow/moodle-linebot-go/internal/sentry"
	"github.com/garyellow/moodle-linebot-go/internal/session"
)

// Backend answers login and topic queries. *moodle.Service implements it.
type Backend interface {
	Login(ctx context.Context, username string) (*moodle.Identity, error)
	Courses(ctx context.Context, userID int64) (moodle.Catalog, error)

	PendingAssignments(ctx context.Context, acct moodle.Account) (string, error)
	AssignmentGrades(ctx context.Context, acct moodle.Account) (string, error)
	CourseGrades(ctx context.Context, acct moodle.Account) (string, error)
	PendingQuizzes(ctx context.Context, acct moodle.Account) (string, error)
	PendingMessages(ctx context.Context, acct moodle.Account) (string, error)
	PendingNotifications(ctx context.Context, acct moodle.Account) (string, error)
	NextWeekEvents(ctx context.Context, acct moodle.Account) (string, error)
}

// Fallback answers free text and keeps the conversation context. *assistant.Assistant implements it.
type Fallback interface {
	Respond(ctx context.Context, key, userText string) (string, error)
	RecordExchange(key, userText, botText string)
	Reset(key string)
}

// Phase is the login state of a chat.
type Phase int

// Phases
const (
	LoggedOut Phase = iota
	LoggedIn
)

func (p Phase) String() string {
	if p == LoggedIn {
		return "logged_in"
	}
	return "logged_out"
}

// Event is one text message from a chat.
type Event struct {
	Key  string // chat id
	Text string
}

// Reply is one outgoing message. A non-empty Menu is shown as selectable options.
type Reply struct {
	Text string
	Menu [][]string
}

// Controller turns chat events into replies.
type Controller struct {
	sessions *session.Store
	backend  Backend
	fallback Fallback
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewController creates a controller. metrics and log may be nil.
func NewController(sessions *session.Store, backend Backend, fallback Fallback, m *metrics.Metrics, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.NewWithWriter("error", io.Discard)
	}
	return &Controller{
		sessions: sessions,
		backend:  backend,
		fallback: fallback,
		metrics:  m,
		log:      log.WithModule("dialogue"),
	}
}

// Handle processes one event to completion. Events of the same key are
// serialized; different keys run independently.
func (c *Controller) Handle(ctx context.Context, ev Event) []Reply {
	unlock := c.sessions.Lock(ev.Key)
	defer unlock()

	text := strings.TrimSpace(ev.Text)

	switch strings.ToLower(text) {
	case CommandStart:
		c.sessions.Reset(ev.Key)
		c.fallback.Reset(ev.Key)
		return []Reply{{Text: welcomeText}}
	case cmdOptions, cmdMenu:
		return []Reply{menuReply(menuPrompt)}
	case cmdHelp:
		return []Reply{{Text: helpText}, menuReply(menuPrompt)}
	}

	sess := c.sessions.Get(ev.Key)
	if !sess.LoggedIn {
		return c.login(ctx, ev.Key, text)
	}

	ctx = ctxutil.WithMoodleUserID(ctx, sess.UserID)
	if topic, ok := ParseTopic(text); ok {
		return c.answerTopic(ctx, ev.Key, text, topic, sess)
	}
	return c.converse(ctx, ev.Key, text)
}

// Phase reports the login state of a chat.
func (c *Controller) Phase(key string) Phase {
	if c.sessions.Get(key).LoggedIn {
		return LoggedIn
	}
	return LoggedOut
}

// login treats the text as a Moodle username. Courses are fetched before the
// session is touched so a failure leaves it logged out.
func (c *Controller) login(ctx context.Context, key, username string) []Reply {
	log := c.log.WithField("username", username)

	id, err := c.backend.Login(ctx, username)
	if err != nil {
		if domerrors.IsLoginFailed(err) {
			log.InfoContext(ctx, "Login rejected")
			c.recordLogin("rejected")
		} else {
			log.WithError(err).ErrorContext(ctx, "Login lookup failed")
			sentry.CaptureExceptionWithContext(ctx, err, map[string]string{"stage": "login"})
			c.recordLogin("error")
		}
		return []Reply{{Text: loginRetryText}}
	}

	courses, err := c.backend.Courses(ctx, id.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", id.UserID).ErrorContext(ctx, "Failed to load courses after login")
		sentry.CaptureExceptionWithContext(ctx, err, map[string]string{"stage": "courses"})
		c.recordLogin("error")
		return []Reply{{Text: loginRetryText}}
	}

	c.sessions.MarkLoggedIn(key, *id)
	if err := c.sessions.CacheCourses(key, courses); err != nil {
		// MarkLoggedIn above makes this succeed
		log.WithError(err).ErrorContext(ctx, "Failed to cache courses")
	}

	log.WithField("user_id", id.UserID).WithField("courses", courses.Len()).InfoContext(ctx, "User logged in")
	c.recordLogin("success")
	return []Reply{menuReply(fmt.Sprintf(loggedInFormat, id.FirstName))}
}

func (c *Controller) answerTopic(ctx context.Context, key, text string, topic Topic, sess session.Session) []Reply {
	log := c.log.WithField("topic", topic.String())

	answer, err := topic.query(ctx, c.backend, sess.Account())
	if err != nil {
		log.WithError(err).ErrorContext(ctx, "Topic query failed")
		sentry.CaptureExceptionWithContext(ctx, err, map[string]string{"topic": topic.String()})
		c.recordTopic(topic, "error")
		return []Reply{menuReply(notUnderstoodText)}
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		c.recordTopic(topic, "empty")
		return []Reply{menuReply(notUnderstoodText)}
	}

	c.fallback.RecordExchange(key, text, answer)
	c.recordTopic(topic, "success")
	log.InfoContext(ctx, "Topic answered")
	return []Reply{{Text: answer}, menuReply(anythingElseText)}
}

func (c *Controller) converse(ctx context.Context, key, text string) []Reply {
	answer, err := c.fallback.Respond(ctx, key, text)
	if err != nil {
		c.log.WithError(err).WarnContext(ctx, "No assistant reply")
		return []Reply{menuReply(notUnderstoodText)}
	}
	return []Reply{{Text: answer}, menuReply(anythingElseText)}
}

func (c *Controller) recordLogin(status string) {
	if c.metrics != nil {
		c.metrics.RecordLogin(status)
	}
}

func (c *Controller) recordTopic(t Topic, status string) {
	if c.metrics != nil {
		c.metrics.RecordTopic(t.String(), status)
	}
}

func menuReply(text string) Reply {
	return Reply{Text: text, Menu: Menu()}
}
