package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// InteractiveCmd creates the interactive command
func InteractiveCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Start a session that keeps the database connection and Gmail token open",
		Long: `Start an interactive session where you can run several commands as the same member.
Use 'as <member_id>' and 'group <group_id>' to switch who and what you act on.
The session runs until you type 'exit' or 'quit'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("\n🚀 Starting interactive session...")
			fmt.Println("Type 'help' for available commands, 'exit' or 'quit' to leave")

			commands := make(map[string]*cobra.Command)
			for _, sub := range cmd.Parent().Commands() {
				switch sub.Name() {
				case "interactive", "completion", "help", "migrate":
					continue
				}
				commands[sub.Name()] = sub
			}

			return runSession(app, os.Stdin, commands)
		},
	}
}

func runSession(app *AppContext, in io.Reader, commands map[string]*cobra.Command) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Printf("%s@%s> ", app.CallerID, app.GroupID)
		if !scanner.Scan() {
			break
		}

		parts, err := parseCommandLine(strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Printf("❌ Error parsing command: %v\n\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "exit", "quit":
			fmt.Println("👋 Goodbye!")
			return nil
		case "help":
			printInteractiveHelp(commands)
			continue
		case "as", "group":
			if len(args) != 1 {
				fmt.Printf("❌ Usage: %s <id>\n\n", name)
				continue
			}
			if name == "as" {
				app.CallerID = args[0]
			} else {
				app.GroupID = args[0]
			}
			continue
		}

		target, ok := commands[name]
		if !ok {
			fmt.Printf("❌ Unknown command: %s (type 'help' for available commands)\n\n", name)
			continue
		}
		if err := runCommand(target, args); err != nil {
			fmt.Printf("❌ Error: %v\n\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

// runCommand calls the command's RunE directly so PersistentPreRunE does not
// reconnect for every line
func runCommand(target *cobra.Command, args []string) error {
	target.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Changed = false
		flag.Value.Set(flag.DefValue)
	})

	if err := target.ParseFlags(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	args = target.Flags().Args()

	if target.Args != nil {
		if err := target.Args(target, args); err != nil {
			return err
		}
	}

	if target.RunE != nil {
		return target.RunE(target, args)
	}
	if target.Run != nil {
		target.Run(target, args)
	}
	return nil
}

func printInteractiveHelp(commands map[string]*cobra.Command) {
	fmt.Println("\nAvailable commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("  %-60s %s\n", commands[name].Use, commands[name].Short)
	}

	fmt.Printf("\n  %-60s %s\n", "as <member_id>", "Act as another member")
	fmt.Printf("  %-60s %s\n", "group <group_id>", "Switch group")
	fmt.Printf("  %-60s %s\n", "help", "Show this help message")
	fmt.Printf("  %-60s %s\n", "exit, quit", "Exit the interactive session")
}

// parseCommandLine splits a command line into arguments, respecting single and double quotes
func parseCommandLine(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	var inQuote rune

	for _, r := range line {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			inQuote = r
		case unicode.IsSpace(r):
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if inQuote != 0 {
		return nil, fmt.Errorf("unclosed quote: %c", inQuote)
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args, nil
}
