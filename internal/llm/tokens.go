package llm

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// CountTokens estimates the token count of text for model. Models unknown to
// tiktoken use cl100k_base; if no encoding can be loaded, four characters are
// counted as one token.
func CountTokens(model, text string) int {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		return approxTokens(text)
	}
	return len(tke.Encode(text, nil, nil))
}

func approxTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
