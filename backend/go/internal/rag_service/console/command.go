// Package console decodes line commands into typed variants and runs the
// interactive read loop that dispatches them to the service.
package console

import (
	"strings"
)

// Kind tags a Command.
type Kind int

const (
	Empty Kind = iota
	Describe
	Delete
	Reindex
	Ask
	Exit
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Describe:
		return "describe"
	case Delete:
		return "delete"
	case Reindex:
		return "reindex"
	case Ask:
		return "ask"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// Command is one decoded input line. Text is set for Ask only.
type Command struct {
	Kind Kind
	Text string
}

var keywords = map[string]Kind{
	"describe":          Describe,
	"describe index":    Describe,
	"describe pinecone": Describe,
	"delete":            Delete,
	"delete index":      Delete,
	"delete pinecone":   Delete,
	"reindex":           Reindex,
	"reload":            Reindex,
	"reload pinecone":   Reindex,
	"exit":              Exit,
	"quit":              Exit,
}

// Parse decodes line. Keywords are matched case-insensitively after trimming
// and collapsing inner whitespace; any other non-blank line is a question.
func Parse(line string) Command {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{Kind: Empty}
	}
	key := strings.ToLower(strings.Join(strings.Fields(trimmed), " "))
	if k, ok := keywords[key]; ok {
		return Command{Kind: k}
	}
	return Command{Kind: Ask, Text: trimmed}
}
