// Package repl provides the interactive shell for browsing processed
// documents, refinement runs, and their artifacts.
package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/scipress/scipress/internal/storage"
	"github.com/scipress/scipress/internal/types"
)

// REPL represents the interactive shell
type REPL struct {
	store    storage.Storage
	rl       *readline.Instance
	ctx      context.Context
	commands map[string]CommandHandler
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Store storage.Storage
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	r := &REPL{
		store:    cfg.Store,
		commands: make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	prompt := cyan("scipress> ")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl
	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := parts[0]
	args := parts[1:]

	handler, ok := r.commands[command]
	if !ok {
		return fmt.Errorf("unknown command %q, type 'help' for available commands", command)
	}
	return handler(args)
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
	r.commands["docs"] = r.cmdDocs
	r.commands["runs"] = r.cmdRuns
	r.commands["iterations"] = r.cmdIterations
	r.commands["best"] = r.cmdBest
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Welcome to scipress"))
	fmt.Println("Quality-gated document processing pipeline")
	fmt.Println()
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"docs", "List processed documents"},
		{"runs <document-id>", "List a document's refinement runs"},
		{"iterations <run-id>", "Show a run's iteration history"},
		{"best <run-id>", "Print a run's selected artifact"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}
	for _, cmd := range commands {
		fmt.Printf("  %-22s %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Println()
	return nil
}

// cmdExit exits the REPL
func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Goodbye!\n", green("✓"))
	r.rl.Close()
	return io.EOF
}

// cmdDocs lists processed documents
func (r *REPL) cmdDocs(args []string) error {
	docs, err := r.store.ListDocuments(r.ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents yet. Run 'scipress process <file>' first.")
		return nil
	}

	for _, doc := range docs {
		fmt.Printf("%s %s  %s\n", statusMarker(string(doc.Status)), doc.DocumentID, doc.Path)
	}
	return nil
}

// cmdRuns lists one document's runs
func (r *REPL) cmdRuns(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: runs <document-id>")
	}
	runs, err := r.store.ListRuns(r.ctx, args[0])
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs for this document.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s %-10s %s  %s", statusMarker(string(run.FinalStatus)), run.Stage, run.RunID, run.FinalStatus)
		if run.Warning != "" {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("  %s", yellow(run.Warning))
		}
		fmt.Println()
	}
	return nil
}

// cmdIterations shows a run's iteration history
func (r *REPL) cmdIterations(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: iterations <run-id>")
	}
	recs, err := r.store.GetIterations(r.ctx, args[0])
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No iterations recorded for this run.")
		return nil
	}

	gray := color.New(color.FgHiBlack).SprintFunc()
	for _, rec := range recs {
		if rec.Report == nil {
			fmt.Printf("  %d: %s\n", rec.Index, gray("no report (failed structural pre-check)"))
			continue
		}
		fmt.Printf("  %d: %s composite=%.2f criticals=%d\n",
			rec.Index, statusMarker(string(rec.Report.Status)),
			rec.Report.CompositeScore, rec.Report.CriticalCount())
		for _, issue := range rec.Report.Issues {
			fmt.Printf("     %s [%s] %s\n", gray("-"), issue.Severity, issue.Description)
		}
	}
	return nil
}

// cmdBest prints a run's selected artifact
func (r *REPL) cmdBest(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: best <run-id>")
	}
	rec, err := r.store.GetBest(r.ctx, args[0])
	if err != nil {
		return err
	}

	var buf strings.Builder
	var pretty json.RawMessage = rec.Candidate.Raw()
	indented, err := json.MarshalIndent(pretty, "", "  ")
	if err == nil {
		buf.Write(indented)
	} else {
		buf.Write(rec.Candidate.Raw())
	}
	fmt.Println(buf.String())
	return nil
}

// statusMarker maps a status string to a colored marker
func statusMarker(status string) string {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	switch status {
	case string(storage.DocumentCompleted), string(types.StatusPassed):
		return green("●")
	case string(storage.DocumentProcessing), "running":
		return gray("○")
	case string(types.StatusMaxIterationsReached), string(types.StatusEarlyStoppedDegrading):
		return yellow("⚠")
	default:
		return red("✗")
	}
}
