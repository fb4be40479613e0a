package lineutil

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage("Hola")
	assert.Equal(t, "Hola", msg.Text)

	long := strings.Repeat("ñ", MaxTextMessageLength+10)
	msg = NewTextMessage(long)
	assert.Equal(t, MaxTextMessageLength, utf8.RuneCountInString(msg.Text))
	assert.True(t, strings.HasSuffix(msg.Text, "..."))
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"Short", "abc", 5, "abc"},
		{"Exact", "abcde", 5, "abcde"},
		{"Cut", "abcdefgh", 6, "abc..."},
		{"Tiny limit", "abcdef", 2, "ab"},
		{"Multibyte", "próxima semana", 8, "próxi..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateRunes(tt.text, tt.max))
		})
	}
}

func TestNewMenuQuickReply(t *testing.T) {
	rows := [][]string{{"Tareas pendientes", "Calificaciones tareas"}, {"Eventos de la próxima semana"}}
	short := map[string]string{"Calificaciones tareas": "Notas tareas", "Eventos de la próxima semana": "Eventos semana"}

	qr := NewMenuQuickReply(rows, func(s string) string {
		if l, ok := short[s]; ok {
			return l
		}
		return s
	})
	require.NotNil(t, qr)
	require.Len(t, qr.Items, 3)

	want := []struct{ label, text string }{
		{"Tareas pendientes", "Tareas pendientes"},
		{"Notas tareas", "Calificaciones tareas"},
		{"Eventos semana", "Eventos de la próxima semana"},
	}
	for i, w := range want {
		action, ok := qr.Items[i].Action.(*messaging_api.MessageAction)
		require.True(t, ok)
		assert.Equal(t, w.label, action.Label)
		assert.Equal(t, w.text, action.Text)
	}
}

func TestNewMenuQuickReply_Limits(t *testing.T) {
	var row []string
	for range 20 {
		row = append(row, "Una opción con una etiqueta muy larga")
	}

	qr := NewMenuQuickReply([][]string{row}, nil)
	require.Len(t, qr.Items, MaxQuickReplyItemCount)
	action := qr.Items[0].Action.(*messaging_api.MessageAction)
	assert.LessOrEqual(t, utf8.RuneCountInString(action.Label), MaxQuickReplyLabel)

	assert.Nil(t, NewMenuQuickReply(nil, nil))
}

func TestNewTextMessageWithMenu(t *testing.T) {
	msg := NewTextMessageWithMenu("¿Qué deseas saber?", [][]string{{"A", "B"}}, nil)
	assert.Equal(t, "¿Qué deseas saber?", msg.Text)
	require.NotNil(t, msg.QuickReply)
	assert.Len(t, msg.QuickReply.Items, 2)

	plain := NewTextMessageWithMenu("x", nil, nil)
	assert.Nil(t, plain.QuickReply)
}

func TestCapMessages(t *testing.T) {
	var msgs []messaging_api.MessageInterface
	for i := range 7 {
		msgs = append(msgs, NewTextMessage(strings.Repeat("x", i+1)))
	}

	capped := CapMessages(msgs)
	require.Len(t, capped, MaxReplyMessages)
	assert.Equal(t, "x", capped[0].(*messaging_api.TextMessage).Text)
	assert.Equal(t, "xxxxxxx", capped[4].(*messaging_api.TextMessage).Text)

	assert.Len(t, CapMessages(msgs[:2]), 2)
}
