package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRendersPlaceholders(t *testing.T) {
	t.Parallel()

	c, err := Load("en")
	require.NoError(t, err)

	got := c.T("en", "bot.switched_conversation", map[string]string{"title": "Trip plan"})
	assert.Equal(t, "🔄 Switched to conversation: Trip plan", got)
}

func TestCatalogFallsBackToEnglish(t *testing.T) {
	t.Parallel()

	c, err := Load("en")
	require.NoError(t, err)

	assert.Equal(t, "❌ Conversation not found.", c.T("ru", "bot.conversation_not_found", nil))
	assert.Equal(t, "[bot.does_not_exist]", c.T("ru", "bot.does_not_exist", nil))
	assert.Equal(t, c.T("en", "bot.nothing_to_clear", nil), c.T("xx", "bot.nothing_to_clear", nil))
}

func TestCatalogUsesRequestedLanguage(t *testing.T) {
	t.Parallel()

	c, err := Load("en")
	require.NoError(t, err)

	assert.Equal(t, "ℹ️ Нечего очищать.", c.T("ru", "bot.nothing_to_clear", nil))
	assert.Equal(t, "ℹ️ Нечего очищать.", c.T("ru-RU", "bot.nothing_to_clear", nil))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	c, err := Load("ru")
	require.NoError(t, err)
	assert.Equal(t, "ru", c.Default())

	code, ok := c.Normalize("EN")
	assert.True(t, ok)
	assert.Equal(t, "en", code)

	_, ok = c.Normalize("ja")
	assert.False(t, ok)

	langs := c.Languages()
	require.Len(t, langs, 2)
	assert.Equal(t, Language{Code: "en", Name: "English"}, langs[0])
	assert.Equal(t, Language{Code: "ru", Name: "Русский"}, langs[1])
}

func TestFormatLeavesUnknownPlaceholders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "code {code} for Bot", Format("code {code} for {bot_name}", map[string]string{"bot_name": "Bot"}))
}
