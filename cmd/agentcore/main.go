// Package main wires the core runtime together behind a minimal CLI: read a
// prompt, drive one parent agent to completion, print its final text. It
// exists to exercise the wiring end to end; a real deployment supplies its
// own provider.Provider implementation talking to an actual model API.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/opencode-ai/agentcore/internal/agent"
	"github.com/opencode-ai/agentcore/internal/agentsession"
	"github.com/opencode-ai/agentcore/internal/logging"
	"github.com/opencode-ai/agentcore/internal/message"
	"github.com/opencode-ai/agentcore/internal/permission"
	"github.com/opencode-ai/agentcore/internal/provider"
	"github.com/opencode-ai/agentcore/internal/sink"
)

func main() {
	var (
		profileName = flag.String("agent", "build", "agent profile: build, plan, or explore")
		workDir     = flag.String("dir", ".", "working directory the built-in tools operate in")
		sessionLogs = flag.String("session-logs", "", "directory to write per-session log files to (optional)")
		storeDir    = flag.String("store", "", "directory for persisted session transcripts (optional)")
	)
	flag.Parse()

	logging.Init(logging.DefaultConfig())
	if *sessionLogs != "" {
		logging.SetSessionLogDir(*sessionLogs)
	}

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		prompt = readStdinPrompt()
	}
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: agentcore [-agent build|plan|explore] [-dir path] <prompt>")
		os.Exit(2)
	}

	profiles := agent.BuiltInProfiles()
	p, ok := profiles[*profileName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown agent profile %q\n", *profileName)
		os.Exit(2)
	}

	var sk sink.Sink
	if *storeDir != "" {
		fs, err := sink.NewFileSink(*storeDir)
		if err != nil {
			logging.Fatal().Err(err).Msg("opening session store")
		}
		sk = fs
	}

	sessions := agentsession.New()
	gate := permission.NewGate(askOnStdin)

	builder := &agent.Builder{
		WorkDir:  *workDir,
		Sessions: sessions,
		Provider: echoProvider{},
		Gate:     gate,
		Sink:     sk,
	}

	a, session, err := builder.Build(p)
	if err != nil {
		logging.Fatal().Err(err).Msg("building agent")
	}
	log := logging.ForSession(session.ID, session.ID)
	defer logging.CloseSession(session.ID)

	log.Info().Str("agent", p.Name).Msg("run starting")
	result, err := a.Run(context.Background(), prompt)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(result)
}

func readStdinPrompt() string {
	info, err := os.Stdin.Stat()
	if err != nil || (info.Mode()&os.ModeCharDevice) != 0 {
		return ""
	}
	data, _ := bufio.NewReader(os.Stdin).ReadString(0)
	return strings.TrimSpace(data)
}

// askOnStdin is a minimal permission callback: it prints the pending call
// and approves anything, for demonstration wiring only.
func askOnStdin(_ context.Context, toolName string, args json.RawMessage) (bool, string) {
	fmt.Fprintf(os.Stderr, "[auto-approved] %s %s\n", toolName, string(args))
	return true, ""
}

// echoProvider is a placeholder provider.Provider that never issues tool
// calls: it always answers with the last user message's content, so the
// binary links and the loop completes end to end without a real model
// backend wired in. Replace with a concrete adapter for actual use.
type echoProvider struct{}

func (echoProvider) CompleteStreaming(ctx context.Context, messages []message.Message, toolSchemas []byte) (provider.Stream, error) {
	return &echoStream{msg: echoProvider{}.reply(messages), sent: false}, nil
}

func (echoProvider) CompleteOnce(ctx context.Context, messages []message.Message, toolSchemas []byte) (message.Message, error) {
	return echoProvider{}.reply(messages), nil
}

func (echoProvider) reply(messages []message.Message) message.Message {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == message.RoleUser {
			last = messages[i].Content
			break
		}
	}
	return message.Assistant(fmt.Sprintf("(echo) %s", last))
}

// echoStream is a one-shot Stream wrapping a single pre-built message.
type echoStream struct {
	msg  message.Message
	sent bool
}

func (s *echoStream) Next(ctx context.Context) (provider.Delta, bool, error) {
	if s.sent {
		return provider.Delta{}, false, nil
	}
	s.sent = true
	return provider.Delta{Content: s.msg.Content}, true, nil
}

func (s *echoStream) Close() error { return nil }
