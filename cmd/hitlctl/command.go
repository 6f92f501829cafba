package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdSend
	cmdApprove
	cmdReject
	cmdEdit
	cmdHistory
	cmdState
	cmdHelp
	cmdQuit
)

// chatCommand is one parsed line of operator input. Lines not starting with
// a slash are messages for the agent.
type chatCommand struct {
	kind       commandKind
	text       string
	toolCallID string
	args       map[string]any
}

const chatHelp = `commands:
  <text>                    send a message
  /approve                  approve the pending action
  /reject [reason]          reject the pending action
  /edit [call-id] {json}    approve with rewritten arguments
  /history                  reprint the conversation
  /state                    show the session state
  /quit                     leave the session`

func parseCommand(line string) (chatCommand, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return chatCommand{kind: cmdNone}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return chatCommand{kind: cmdSend, text: line}, nil
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(name) {
	case "/approve", "/a":
		return chatCommand{kind: cmdApprove}, nil
	case "/reject", "/r":
		return chatCommand{kind: cmdReject, text: rest}, nil
	case "/edit", "/e":
		return parseEdit(rest)
	case "/history":
		return chatCommand{kind: cmdHistory}, nil
	case "/state":
		return chatCommand{kind: cmdState}, nil
	case "/help", "/?":
		return chatCommand{kind: cmdHelp}, nil
	case "/quit", "/exit", "/q":
		return chatCommand{kind: cmdQuit}, nil
	}
	return chatCommand{}, fmt.Errorf("unknown command %s (try /help)", name)
}

func parseEdit(rest string) (chatCommand, error) {
	if rest == "" {
		return chatCommand{}, errors.New("/edit needs a json object of arguments")
	}
	id := ""
	if !strings.HasPrefix(rest, "{") {
		id, rest, _ = strings.Cut(rest, " ")
		rest = strings.TrimSpace(rest)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(rest)))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return chatCommand{}, fmt.Errorf("/edit arguments: %w", err)
	}
	if args == nil {
		return chatCommand{}, errors.New("/edit arguments must be a json object")
	}
	return chatCommand{kind: cmdEdit, toolCallID: id, args: args}, nil
}
