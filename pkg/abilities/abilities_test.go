package abilities

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessCode(t *testing.T) {
	in := "def greet(name: str):   \n    return f\"Hi, {name}\"\t\n\n"
	out := PreprocessCode(in)
	assert.Equal(t, "def greet(name: str):\n    return f\"Hi, {name}\"", out)
}

func TestPreprocessCodeStripsSurroundingBlankLines(t *testing.T) {
	in := "\n\nx = 1\n\n\n"
	assert.Equal(t, "x = 1", PreprocessCode(in))
}

func TestRenderCallToolsTemplate(t *testing.T) {
	script, err := renderTemplate("call_tools.py.tmpl", map[string]string{
		"Code":     "def greet(name: str):\n    return name",
		"ToolCall": `{"id":"call_1","type":"function","function":{"name":"greet","arguments":"{\"name\":\"Ada\"}"}}`,
	})
	require.NoError(t, err)
	assert.Contains(t, script, "def greet(name: str):")
	assert.Contains(t, script, `tool_call = {"id":"call_1"`)
	assert.Contains(t, script, "print(globals()[name](**arguments))")
}

func TestRenderFunctionDefinitionTemplate(t *testing.T) {
	script, err := renderTemplate("get_function_definition.py.tmpl", map[string]string{
		"Code": "def greet(name: str):\n    return name",
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(script, "@ability.register()\ndef greet(name: str):"))
	assert.Contains(t, script, "print(json.dumps(ability.functions_definitions()[0]))")
}
