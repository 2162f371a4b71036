package genai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalJSONResponse(t *testing.T) {
	type payload struct {
		Toc []string `json:"toc"`
	}

	cases := []struct {
		name string
		raw  string
	}{
		{"bare object", `{"toc": ["a", "b"]}`},
		{"json fence", "```json\n{\"toc\": [\"a\", \"b\"]}\n```"},
		{"bare fence", "```\n{\"toc\": [\"a\", \"b\"]}\n```"},
		{"surrounding prose", "Here is the result:\n{\"toc\": [\"a\", \"b\"]}\nHope that helps."},
		{"fenced with prose", "Sure!\n```json\n{\"toc\": [\"a\", \"b\"]}\n```"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out payload
			require.NoError(t, UnmarshalJSONResponse(tc.raw, &out))
			assert.Equal(t, []string{"a", "b"}, out.Toc)
		})
	}
}

func TestUnmarshalJSONResponseNoObject(t *testing.T) {
	var out map[string]interface{}
	err := UnmarshalJSONResponse("no json here at all", &out)
	assert.ErrorIs(t, err, ErrNoJSON)
}
