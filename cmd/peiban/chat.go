package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/peiban-ai/peiban/pkg/dispatch"
	"github.com/peiban-ai/peiban/pkg/router"
)

// sessionForName builds the long-term memory session id for a user. The
// prefix keeps router-mode memories separate from any future fixed-persona
// mode for the same person.
func sessionForName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Print("请输入老人的名字 (这将用于加载专属记忆): ")
		fmt.Scanln(&name)
		name = strings.TrimSpace(name)
	}
	if name == "" {
		name = "default_user"
		fmt.Println("未输入名字，使用默认记忆库: default_user")
	}
	return "Router:" + name
}

func runOneShot(ctx context.Context, eng *engine, sessionID, message string, showRouting bool) error {
	result, err := eng.dispatcher.Turn(ctx, sessionID, message)
	if err != nil && result == nil {
		return fmt.Errorf("%s", describeTurnError(err))
	}
	printReply(result, err, showRouting)
	return nil
}

func runREPL(ctx context.Context, eng *engine, sessionID string, showRouting bool) error {
	fmt.Println("------------------------------------------------")
	fmt.Printf("已加载长期记忆库，ID: %s\n", sessionID)
	fmt.Println("输入 quit 或 exit 结束对话。")
	fmt.Println("------------------------------------------------")

	rl, err := readline.New("您: ")
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" {
			return nil
		}

		result, err := eng.dispatcher.Turn(ctx, sessionID, input)
		if err != nil && result == nil {
			fmt.Println(describeTurnError(err))
			continue
		}
		printReply(result, err, showRouting)
	}
}

func printReply(result *dispatch.Result, saveErr error, showRouting bool) {
	if showRouting {
		fmt.Printf("[路由: %s", router.DisplayName(result.Decision.Target))
		if result.Decision.Rationale != "" {
			fmt.Printf(", %s", result.Decision.Rationale)
		}
		fmt.Println("]")
	}
	fmt.Printf("%s: %s\n", router.DisplayName(result.Decision.Target), result.Reply.Content)
	if saveErr != nil && errors.Is(saveErr, dispatch.ErrStoreSave) {
		fmt.Println("(注意：这轮对话没有保存成功)")
	}
	fmt.Println("------------------------------------------------")
}
