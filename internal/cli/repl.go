package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog/log"

	"github.com/lldhost/reconciler/internal/audit"
	"github.com/lldhost/reconciler/internal/core"
	"github.com/lldhost/reconciler/internal/lld"
	"github.com/lldhost/reconciler/internal/store"
)

// REPL is an interactive shell for replaying discovery payloads against
// the reconciliation engine and inspecting prior runs.
type REPL struct {
	engine *core.Engine
	driver *store.Driver
	audit  *audit.Manager
	rl     *readline.Instance
}

// New builds a REPL bound to an already-open engine.
func New(engine *core.Engine) (*REPL, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mlldhost>\033[0m ",
		HistoryFile:     ".lldhost/history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("readline: %w", err)
	}

	drv := store.New(engine)
	r := &REPL{
		engine: engine,
		driver: drv,
		audit:  audit.NewManager(engine),
		rl:     rl,
	}

	engine.OnChange(func(event string) {
		charset, _ := engine.GetConfig("hostname_charset")
		log.Info().
			Str("event", event).
			Str("hostname_charset", charset).
			Int("default_lifetime_days", engine.GetConfigInt("default_lifetime_days")).
			Msg("config reloaded")
	})

	return r, nil
}

// Run starts the read-eval-print loop until EOF, /exit, or a terminating
// signal.
func (r *REPL) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		r.rl.Close()
	}()

	fmt.Println("lldhost reconciler REPL. /help for commands.")

	for {
		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		cmd := ParseCommand(line)
		if cmd == nil {
			continue
		}
		if err := r.dispatch(cmd); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		if cmd.Type == CommandExit {
			return nil
		}
	}
}

func (r *REPL) dispatch(cmd *Command) error {
	switch cmd.Type {
	case CommandHelp:
		r.printHelp()
	case CommandExit:
		fmt.Println("bye")
	case CommandConfig:
		return r.handleConfig(cmd)
	case CommandRun:
		return r.handleRun(cmd)
	case CommandRuns:
		return r.handleRuns(cmd)
	case CommandDiag:
		return r.handleDiag(cmd)
	default:
		fmt.Println("unrecognized input; /help for commands")
	}
	return nil
}

func (r *REPL) printHelp() {
	fmt.Println(`commands:
  /run <lld_ruleid> <payload.json>   replay a discovery payload
  /runs <lld_ruleid>                 list recent runs for a rule
  /diag <run_id>                     show diagnostics for a run
  /config <key> [value]              get or set a hot-reloadable config key
  /help                               this message
  /exit                               quit`)
}

func (r *REPL) handleConfig(cmd *Command) error {
	if cmd.Key == "" {
		return fmt.Errorf("usage: /config <key> [value]")
	}
	if cmd.Value == "" {
		val, err := r.engine.GetConfig(cmd.Key)
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", cmd.Key, val)
		return nil
	}
	if err := r.engine.SetConfig(cmd.Key, cmd.Value); err != nil {
		return err
	}
	fmt.Printf("%s set to %s\n", cmd.Key, cmd.Value)
	return nil
}

func (r *REPL) handleRun(cmd *Command) error {
	if cmd.LLDRuleID == 0 || cmd.Path == "" {
		return fmt.Errorf("usage: /run <lld_ruleid> <payload.json>")
	}

	payload, err := os.ReadFile(cmd.Path)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	runID, err := r.audit.Begin(cmd.LLDRuleID)
	if err != nil {
		return err
	}

	lifetimeDays := r.engine.GetConfigInt("default_lifetime_days")
	charset, _ := r.engine.GetConfig("hostname_charset")

	filter := lld.AcceptAllFilter()
	diagnostics, runErr := lld.UpdateHosts(
		r.driver,
		lld.NewJSONParser(),
		lld.NewMacroSubstituter(),
		filter,
		noopTemplateLinker{},
		noopHostDeleter{},
		cmd.LLDRuleID,
		payload,
		charset,
		lifetimeDays,
		nowUnix(),
	)

	errorCount := 0
	if diagnostics != "" {
		errorCount = 1
		_ = r.audit.LogDiagnostics(runID, diagnostics)
	}
	if runErr != nil {
		errorCount++
	}
	if err := r.audit.Finish(runID, 0, 0, 0, errorCount, nil); err != nil {
		return err
	}

	fmt.Printf("run %s finished\n", runID)
	if diagnostics != "" {
		fmt.Println(diagnostics)
	}
	return runErr
}

func (r *REPL) handleRuns(cmd *Command) error {
	runs, err := r.audit.ListForRule(cmd.LLDRuleID, 20)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("%s  started=%s  errors=%d\n", run.ID, run.StartedAt.Format("2006-01-02T15:04:05"), run.ErrorCount)
	}
	return nil
}

func (r *REPL) handleDiag(cmd *Command) error {
	if cmd.RunID == "" {
		return fmt.Errorf("usage: /diag <run_id>")
	}
	lines, err := r.audit.Diagnostics(cmd.RunID)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

// noopTemplateLinker satisfies lld.TemplateLinker for the REPL, where the
// external template-copy subsystem is out of scope; linking is a no-op.
type noopTemplateLinker struct{}

func (noopTemplateLinker) Link(hostID uint64, templateIDs []uint64) error   { return nil }
func (noopTemplateLinker) Unlink(hostID uint64, templateIDs []uint64) error { return nil }

// noopHostDeleter satisfies lld.HostDeleter for the REPL, printing what
// would have been deleted instead of deleting it.
type noopHostDeleter struct{}

func (noopHostDeleter) DeleteHosts(hostIDs []uint64) error {
	fmt.Printf("would delete hosts: %v\n", hostIDs)
	return nil
}

// nowUnix returns the run's reference clock. LLDHOST_NOW lets a replayed
// payload be anchored to a fixed timestamp for reproducible reaper behavior;
// otherwise it falls back to the wall clock.
func nowUnix() int64 {
	if v := os.Getenv("LLDHOST_NOW"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return ts
		}
	}
	return time.Now().Unix()
}
