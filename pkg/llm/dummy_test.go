package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyClient_Generate(t *testing.T) {
	t.Run("echoes prompt snippet with provider and model identity", func(t *testing.T) {
		client := NewDummyClient("llama3")

		out, err := client.Generate(context.Background(), "What is CRDT convergence?", Options{})
		require.NoError(t, err)
		assert.Equal(t, "[dummy completion from dummy:llama3] Prompt snippet: What is CRDT convergence?", out)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		client := NewDummyClient("llama3")

		out, err := client.Generate(context.Background(), "  hello  \n", Options{})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(out, "Prompt snippet: hello"))
	})

	t.Run("truncates long prompts to 200 characters plus ellipsis", func(t *testing.T) {
		client := NewDummyClient("llama3")
		prompt := strings.Repeat("a", 300)

		out, err := client.Generate(context.Background(), prompt, Options{})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(out, strings.Repeat("a", 200)+"…"))
		assert.NotContains(t, out, strings.Repeat("a", 201))
	})

	t.Run("defaults model name when empty", func(t *testing.T) {
		client := NewDummyClient("")
		assert.Equal(t, "dummy-model", client.ModelName())
		assert.Equal(t, "dummy", client.ProviderName())
	})
}
