// Package assistant answers free-form questions with an LLM, keeping one
// conversation transcript per chat so menu answers stay in context.
package assistant

import "context"

// Role tags a transcript turn.
type Role string

// Transcript roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role
	Content string
}

// Provider generates the next assistant message for a conversation.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Complete returns the assistant reply for the system instruction and turns.
	// An empty string with nil error means the model produced no content.
	Complete(ctx context.Context, system string, turns []Turn) (string, error)
}

// SystemSeed is the instruction sent ahead of every conversation.
const SystemSeed = "Eres un asistente de un aula virtual alojado en Moodle." +
	"Responderás preguntas relacionadas con el aula virtual. " +
	"Lo que puede responder este bot son las tareas pendientes, la calificación de las tareas, " +
	"la calificación de los cursos, los cuestionarios pendientes, mensajes pendientes, " +
	"notificaciones pendientes y los eventos de la próxima semana."
