package main

import (
	"fmt"
	"os"
	"strings"
)

// uiMode is the value of the tri-state --ui and --color settings.
type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch m := uiMode(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return uiModeAuto, nil
	case uiModeAuto, uiModeOn, uiModeOff:
		return m, nil
	}
	return "", fmt.Errorf("invalid ui value %q (expected auto|on|off)", value)
}

// enabledOn resolves mode; auto means f is a terminal.
func (m uiMode) enabledOn(f *os.File) bool {
	if m == uiModeAuto {
		return isTerminal(f)
	}
	return m == uiModeOn
}

// shouldUseTUI reports whether the batch progress UI draws on stdout.
func shouldUseTUI(mode uiMode) bool { return mode.enabledOn(os.Stdout) }

// useColor resolves --color.
func useColor(value string) (bool, error) {
	mode, err := readUIMode(value)
	if err != nil {
		return false, fmt.Errorf("invalid --color value %q (expected auto|on|off)", value)
	}
	return mode.enabledOn(os.Stdout), nil
}
