// claricli is a terminal client for a running clarichat server. It logs in,
// keeps a conversation going over the HTTP API, and mirrors the web client's
// behavior: optimistic sends, auto-titled first messages, and locally
// persisted drafts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"clarichat/internal/client"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8090", "clarichat server base URL")
	email := flag.String("email", "", "account email")
	flag.Parse()

	if err := run(*serverURL, *email); err != nil {
		log.Fatal(err)
	}
}

func run(serverURL, email string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	ctx := context.Background()
	api := client.NewAPIClient(serverURL)

	if email == "" {
		var err error
		email, err = line.Prompt("email: ")
		if err != nil {
			return err
		}
	}
	password, err := line.PasswordPrompt("password: ")
	if err != nil {
		return err
	}

	login, err := api.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Printf("Logged in as %s\n", login.Name)

	drafts, err := client.NewDraftStore(draftPath())
	if err != nil {
		// Drafts are a convenience; run without them.
		log.Printf("draft store unavailable: %v", err)
	}
	defer func() {
		if drafts != nil {
			if err := drafts.Flush(); err != nil {
				log.Printf("flush drafts: %v", err)
			}
		}
	}()

	ctl := client.NewController(api, drafts, func(text string) {
		fmt.Printf("! %s\n", text)
	})

	if drafts != nil {
		if draft := drafts.Get(0); draft != "" {
			fmt.Printf("(unsent draft restored: %q)\n", draft)
		}
	}
	fmt.Println("Type a message, or /help for commands.")

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			// Ctrl+C or Ctrl+D ends the session.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := handleCommand(ctx, ctl, input); quit {
				return nil
			}
			continue
		}

		msg, err := ctl.Send(ctx, input)
		if err != nil {
			// Keep the text around as a draft so it survives a restart.
			if drafts != nil {
				drafts.Set(ctl.ConversationID(), input)
			}
			fmt.Printf("send failed (%v); /retry to try again\n", err)
			continue
		}
		if msg == nil {
			continue
		}
		printLastReply(ctl)
	}
}

func handleCommand(ctx context.Context, ctl *client.Controller, input string) (quit bool) {
	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help", "/h":
		fmt.Println("  /list          list conversations")
		fmt.Println("  /open <id>     open a conversation")
		fmt.Println("  /new           start a fresh conversation")
		fmt.Println("  /rename <t>    rename the open conversation")
		fmt.Println("  /delete        delete the open conversation")
		fmt.Println("  /retry         resend the last failed message")
		fmt.Println("  /quit          exit")
	case "/list", "/l":
		if err := ctl.LoadList(ctx); err != nil {
			return false
		}
		for _, sum := range ctl.Summaries() {
			last := ""
			if sum.LastMessage != nil {
				last = " - " + firstLine(sum.LastMessage.Content)
			}
			fmt.Printf("  [%d] %s%s\n", sum.ID, sum.Title, last)
		}
	case "/open", "/o":
		if len(args) != 1 {
			fmt.Println("usage: /open <id>")
			return false
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			fmt.Println("usage: /open <id>")
			return false
		}
		if err := ctl.LoadConversation(ctx, id); err != nil {
			return false
		}
		fmt.Printf("-- %s --\n", ctl.Title())
		for _, m := range ctl.Messages() {
			fmt.Printf("%s: %s\n", m.Role, m.Content)
		}
	case "/new", "/n":
		ctl.NewConversation()
		fmt.Println("(new conversation)")
	case "/rename":
		if len(args) == 0 {
			fmt.Println("usage: /rename <title>")
			return false
		}
		if err := ctl.Rename(ctx, strings.Join(args, " ")); err == nil {
			fmt.Printf("renamed to %q\n", ctl.Title())
		}
	case "/delete":
		if err := ctl.Delete(ctx); err == nil {
			fmt.Println("(deleted)")
		}
	case "/retry", "/r":
		for _, m := range ctl.Messages() {
			if m.State == client.DeliveryFailed {
				if _, err := ctl.Retry(ctx, m.LocalID); err == nil {
					printLastReply(ctl)
				}
				return false
			}
		}
		fmt.Println("nothing to retry")
	case "/quit", "/q", "/exit":
		return true
	default:
		fmt.Printf("unknown command %s (try /help)\n", cmd)
	}
	return false
}

func printLastReply(ctl *client.Controller) {
	messages := ctl.Messages()
	if len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	if last.Role != "assistant" {
		return
	}
	if last.Structured != nil && last.Structured.Title != "" {
		fmt.Printf("\n== %s ==\n", last.Structured.Title)
	}
	fmt.Printf("%s\n\n", last.Content)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return s
}

func draftPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "claricli-drafts.json")
	}
	return filepath.Join(home, ".claricli", "drafts.json")
}
