package dialogue

// User-visible texts.
const (
	welcomeText = "¡Bienvenido! Soy tu asistente virtual de Moodle.\n" +
		"Para comenzar, proporciona tu nombre de usuario en Moodle."

	menuPrompt = "¿Qué deseas saber sobre tu aula virtual?"

	loggedInFormat = "Bienvenido, %s. ¿Qué deseas saber sobre tu aula virtual?"

	loginRetryText = "Lo siento, no he podido validar tu usuario. " +
		"¿Puedes proporcionarme tu nombre de usuario del aula virtual?"

	anythingElseText = "¿En qué más te puedo ayudar?"

	notUnderstoodText = "Lo siento, no te he entendido. ¿En qué más te puedo ayudar?"

	helpText = "Soy un bot conversacional creado para proporcionarte información sobre tus " +
		"cursos del aula virtual alojado en Moodle." +
		"\nLa información que puedo responder actualmente es la siguiente:" +
		"\n* Tareas pendientes" +
		"\n* Notas tareas" +
		"\n* Notas asignaturas" +
		"\n* Cuestionarios pendientes" +
		"\n* Mensajes pendientes" +
		"\n* Notificaciones pendientes" +
		"\n* Eventos en los próximos 7 días"
)

// CommandStart resets the conversation. A LINE follow event is handled as this command.
const CommandStart = "/start"

// Other commands accepted in any state.
const (
	cmdOptions = "/options"
	cmdMenu    = "/menu"
	cmdHelp    = "/help"
)
