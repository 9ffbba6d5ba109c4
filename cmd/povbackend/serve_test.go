package main

import "testing"

func TestRootCommandRegistersServe(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "serve" {
			found = true
		}
	}
	if !found {
		t.Error("expected serve subcommand to be registered on rootCmd")
	}
}
