package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v3"

	"hearth/agent"
	"hearth/common"
	"hearth/llm"
)

const chatSystemPrompt = "You are a voice assistant for a smart home. Answer briefly and helpfully. Use the available tools to control devices when the user asks for an action."

func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with the assistant from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "conversation",
				Usage: "Conversation id to resume (defaults to a fresh one)",
			},
		},
		Action: handleChatCommand,
	}
}

func handleChatCommand(ctx context.Context, cmd *cli.Command) error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}

	orchestrator, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	memory := agent.NewConversationMemory(cfg.MemoryTokenBudget)
	conversationId := cmd.String("conversation")
	if conversationId == "" {
		conversationId = "conv_" + ksuid.New().String()
	}

	fmt.Printf("hearth chat (conversation %s, empty line to exit)\n", conversationId)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			break
		}

		continuing := orchestrator.Store().Has(conversationId)
		if !continuing {
			memory.Append(conversationId, llm.UserMessage(input))
		}
		messages := append(
			[]llm.ChatMessage{llm.SystemMessage(chatSystemPrompt)},
			memory.History(conversationId)...,
		)

		result, err := orchestrator.ProcessTurn(ctx, conversationId, input, messages)
		if err != nil {
			return err
		}
		if !result.Pending {
			memory.Append(conversationId, llm.AssistantMessage(result.Text, nil))
		}

		fmt.Println(result.Text)
		if result.Tokens.Total > 0 {
			label := "reported"
			if result.Tokens.Estimated {
				label = "estimated"
			}
			fmt.Printf("  [%d tokens, %s]\n", result.Tokens.Total, label)
		}
	}
	return scanner.Err()
}
