package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starfleetai/bridge/pkg/models"
)

func chatMessage(role models.MessageRole, content string) models.Message {
	return models.Message{Role: role, Content: &content}
}

func TestTrimToContextWindow(t *testing.T) {
	system := chatMessage(models.RoleSystem, strings.Repeat("s", 400))
	oldest := chatMessage(models.RoleUser, strings.Repeat("a", 400))
	middle := chatMessage(models.RoleAssistant, strings.Repeat("b", 400))
	newest := chatMessage(models.RoleUser, strings.Repeat("c", 400))

	t.Run("fits untouched", func(t *testing.T) {
		messages := []models.Message{system, oldest, middle, newest}
		trimmed := trimToContextWindow(messages, 1000)
		assert.Len(t, trimmed, 4)
	})

	t.Run("drops oldest non-system first", func(t *testing.T) {
		// 400 estimated tokens total, window of 300: one drop suffices.
		messages := []models.Message{system, oldest, middle, newest}
		trimmed := trimToContextWindow(messages, 300)

		require.Len(t, trimmed, 3)
		assert.Equal(t, models.RoleSystem, trimmed[0].Role)
		assert.Equal(t, strings.Repeat("b", 400), trimmed[1].ContentOrEmpty())
		assert.Equal(t, strings.Repeat("c", 400), trimmed[2].ContentOrEmpty())
	})

	t.Run("keeps dropping until it fits", func(t *testing.T) {
		messages := []models.Message{system, oldest, middle, newest}
		trimmed := trimToContextWindow(messages, 200)

		require.Len(t, trimmed, 2)
		assert.Equal(t, models.RoleSystem, trimmed[0].Role)
		assert.Equal(t, strings.Repeat("c", 400), trimmed[1].ContentOrEmpty())
	})

	t.Run("system messages survive even when over budget", func(t *testing.T) {
		messages := []models.Message{system, chatMessage(models.RoleSystem, strings.Repeat("t", 400))}
		trimmed := trimToContextWindow(messages, 50)
		assert.Len(t, trimmed, 2)
	})

	t.Run("unknown context length disables trimming", func(t *testing.T) {
		messages := []models.Message{system, oldest, middle, newest}
		assert.Len(t, trimToContextWindow(messages, 0), 4)
	})
}
