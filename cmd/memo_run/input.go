package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// readInput reads a JSON document from path, or from stdin when path is
// empty, and checks that it is well-formed.
func readInput(path string, stdin io.Reader) ([]byte, error) {
	var raw []byte
	var err error
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		raw, err = io.ReadAll(stdin)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON input")
	}
	return raw, nil
}

// writeJSON writes v indented, leaving non-ASCII text and HTML unescaped.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isJSONArray(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
