package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

var stdout io.Writer = os.Stdout

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(stdout, string(b))
}

// configArg prefers a positional config path over --config.
func configArg(flag string, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if flag == "" {
		return "", fmt.Errorf("config file required. Use --config=svcdeck.toml or provide as argument")
	}
	return flag, nil
}
