package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/incident-explorer/internal/explorer"
)

// setting is one widget assignment from -set or a session line.
type setting struct {
	Widget string
	Values []string
}

// parseSetting reads "name=v1,v2". An empty value list clears a multi-select.
func parseSetting(s string) (setting, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return setting{}, fmt.Errorf("expected name=v1,v2, got %q", s)
	}
	return setting{Widget: name, Values: splitValues(raw)}, nil
}

func splitValues(raw string) []string {
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// settingList implements flag.Value for repeated -set flags.
type settingList []setting

func (l *settingList) String() string {
	parts := make([]string, 0, len(*l))
	for _, s := range *l {
		parts = append(parts, s.Widget+"="+strings.Join(s.Values, ","))
	}
	return strings.Join(parts, " ")
}

func (l *settingList) Set(v string) error {
	s, err := parseSetting(v)
	if err != nil {
		return err
	}
	*l = append(*l, s)
	return nil
}

// parseCommand reads a session line: "set <widget> <v1,v2,...>", "show" or
// "help".
func parseCommand(line string) (string, setting, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", setting{}, fmt.Errorf("empty command")
	}
	switch fields[0] {
	case "show", "help":
		return fields[0], setting{}, nil
	case "set":
		if len(fields) < 2 {
			return "", setting{}, fmt.Errorf("usage: set <widget> <v1,v2,...>")
		}
		_, rest, _ := strings.Cut(strings.TrimSpace(line)[len("set"):], fields[1])
		return "set", setting{Widget: fields[1], Values: splitValues(rest)}, nil
	}
	return "", setting{}, fmt.Errorf("unknown command %q", fields[0])
}

func handleLine(ctx context.Context, s *explorer.Session, line string) string {
	cmd, set, err := parseCommand(line)
	if err != nil {
		return "error: " + err.Error()
	}
	switch cmd {
	case "help":
		return `commands: set <widget> <v1,v2,...> | show | help`
	case "show":
		return s.View(nil).Readout
	}
	report, err := s.Apply(ctx, set.Widget, set.Values...)
	if err != nil {
		return "error: " + err.Error()
	}
	return fmt.Sprintf("pass %s: evaluated %s in %v", report.ID, strings.Join(report.Evaluated, ", "), report.Duration)
}
