package main

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// highlight renders one source line for the terminal, picking the lexer
// from the file name.
func highlight(path string, line []byte) (string, error) {
	text := strings.TrimSpace(string(line))
	if text == "" {
		return "", nil
	}

	lexer := lexers.Match(path)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		return text, nil
	}

	var buf bytes.Buffer
	if err := formatters.Get("terminal256").Format(&buf, styles.Get("monokai"), iterator); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
