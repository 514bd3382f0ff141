// Package cmd is dmux's cobra command tree and composition root: it wires
// every package under the module root into one running process, the same
// role main.go + package-level var blocks play in the teacher's CLI.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dmux/action"
	"dmux/analyzer"
	"dmux/config"
	"dmux/gitwt"
	"dmux/hooks"
	"dmux/httpapi"
	"dmux/lifecycle"
	"dmux/llm"
	"dmux/log"
	"dmux/logsvc"
	"dmux/merge"
	"dmux/panebus"
	"dmux/store"
	"dmux/termstream"
	"dmux/tmux"
	"dmux/ui"
)

var (
	version     = "0.1.0"
	agentFlag   string
	portFlag    int
	headlessFlag bool

	rootCmd = &cobra.Command{
		Use:   "dmux",
		Short: "dmux - an AI coding agent orchestrator built on tmux worktrees",
		Args:  cobra.NoArgs,
		RunE:  runRoot,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&agentFlag, "agent", "a", "", "default agent CLI to launch in new panes (claude, opencode, codex)")
	rootCmd.Flags().IntVarP(&portFlag, "port", "p", 7890, "HTTP/SSE facade listen port")
	rootCmd.Flags().BoolVar(&headlessFlag, "headless", false, "run the HTTP facade without starting the TUI")

	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dmux version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dmux version %s\n", version)
	},
}

// Execute runs the root command, the module's single entry point.
func Execute() error {
	return rootCmd.Execute()
}

var sessionNameDisallowed = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sessionNameFor(projectName string) string {
	return "dmux-" + sessionNameDisallowed.ReplaceAllString(projectName, "-")
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log.Initialize(false)
	defer log.Close()

	projectRoot, err := gitwt.FindRepoRoot(".")
	if err != nil {
		return fmt.Errorf("dmux must be run from within a git repository: %w", err)
	}
	projectName := filepath.Base(projectRoot)

	settings, err := config.LoadSettings(projectRoot)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if agentFlag != "" {
		settings = settings.Merge(config.Settings{DefaultAgent: config.Agent(agentFlag)})
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	st := store.New(projectName, projectRoot, settings)
	st.SetServerPort(portFlag)

	configPath := store.ConfigFilePath(projectRoot)
	watcher := store.NewWatcher(st, configPath)
	stopWatcher, err := watcher.Start()
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	defer stopWatcher()

	tmuxAdapter := tmux.New(sessionNameFor(projectName))
	if _, err := tmuxAdapter.EnsureSession(ctx, projectRoot); err != nil {
		return fmt.Errorf("failed to start tmux session: %w", err)
	}

	gitAdapter := gitwt.New(projectRoot)

	chain := buildLLMChain(settings)

	ring := logsvc.NewRing(logsvc.DefaultCapacity)
	toasts := logsvc.NewToastQueue(ring)

	hookRunner := hooks.New(projectRoot, homeDir(), ring)
	if err := hooks.Materialize(projectRoot); err != nil {
		log.WarningLog.Printf("failed to materialize hook templates: %v", err)
	}

	lc := lifecycle.New(tmuxAdapter, gitAdapter, st, chain, hookRunner, projectRoot)

	hub := termstream.NewHub(tmuxAdapter)

	sendKeys := tmuxAdapter.SendKeys
	az := analyzer.New(tmuxAdapter, chain, sendKeys)
	az.OnResult = func(paneID string, r analyzer.Result) {
		if err := persistUpdatePane(configPath, paneID, func(p *store.Pane) {
			prevStatus := p.AgentStatus
			p.AgentStatus = r.Status
			p.OptionsQuestion = r.OptionsQuestion
			p.Options = r.Options
			p.PotentialHarm = r.PotentialHarm
			p.AgentSummary = r.AgentSummary
			p.AnalyzerError = r.AnalyzerError
			if prevStatus == store.StatusWaiting && r.Status != store.StatusWaiting {
				p.ClearOnLeavingWaiting()
			}
			if prevStatus == store.StatusIdle && r.Status != store.StatusIdle {
				p.ClearOnLeavingIdle()
			}
			if r.Status == store.StatusWorking {
				p.ClearOnEnteringWorking()
			}
		}); err != nil {
			log.WarningLog.Printf("failed to persist analyzer result for %s: %v", paneID, err)
		}
	}
	az.OnError = func(paneID string, err error) {
		log.WarningLog.Printf("analyzer error for pane %s: %v", paneID, err)
	}

	mergeSession := merge.New(gitAdapter, tmuxAdapter, chain, lc, hookRunner, st, projectRoot)

	dispatcher := action.New()
	registerActions(dispatcher, lc, mergeSession, st, az, configPath)

	facade := httpapi.New(&httpapi.Facade{
		Store:       st,
		Tmux:        tmuxAdapter,
		Hub:         hub,
		Dispatcher:  dispatcher,
		Lifecycle:   lc,
		MergeEngine: mergeSession,
		Hooks:       hookRunner,
		Ring:        ring,
		Toasts:      toasts,
		ProjectRoot: projectRoot,
		ProjectName: projectName,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(portFlag),
		Handler:           facade.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.ErrorLog.Printf("http server stopped: %v", err)
		}
	}()
	defer server.Close()

	mode, err := panebus.Start(ctx, &panebus.HookBus{Adapter: tmuxAdapter, SocketPath: filepath.Join(projectRoot, ".dmux", "panebus.sock")}, &panebus.PollBus{Adapter: tmuxAdapter}, onPaneBusEvent(configPath, st, az))
	if err != nil {
		log.WarningLog.Printf("pane event bus failed to start: %v", err)
	} else {
		log.InfoLog.Printf("pane event bus running in %s mode", mode)
	}

	trackExistingPanes(ctx, st, az, settings)

	if headlessFlag {
		<-ctx.Done()
		return nil
	}

	return ui.Run(ctx, st, tmuxAdapter, dispatcher, lc, toasts)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

func buildLLMChain(settings config.Settings) *llm.Chain {
	var providers []llm.Provider
	if agent := string(settings.DefaultAgent); agent != "" {
		if resolved, err := llm.ResolveCLICommand(os.Getenv("SHELL"), agent); err == nil {
			providers = append(providers, &llm.CLIProvider{Command: resolved})
		}
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		model := os.Getenv("OPENROUTER_MODEL")
		if model == "" {
			model = "anthropic/claude-3.5-haiku"
		}
		providers = append(providers, llm.NewHTTPProvider("https://openrouter.ai/api/v1", key, model))
	}
	return &llm.Chain{
		Providers: providers,
		OnWarn: func(provider, msg string) {
			log.WarningLog.Printf("llm provider %s failed: %s", provider, msg)
		},
	}
}

// trackExistingPanes hands every pane already on disk to the analyzer, so a
// restarted process resumes watching without waiting for the next bus event.
func trackExistingPanes(ctx context.Context, st *store.Store, az *analyzer.Analyzer, settings config.Settings) {
	for _, p := range st.Snapshot().Panes {
		if p.Agent == store.AgentNone {
			continue
		}
		az.Track(ctx, p.ID, p.Autopilot)
	}
}

// onPaneBusEvent reconciles panes tmux reports gone (closed outside dmux,
// e.g. the user typed "exit") out of the on-disk pane file.
func onPaneBusEvent(configPath string, st *store.Store, az *analyzer.Analyzer) func(panebus.Event) {
	return func(ev panebus.Event) {
		if len(ev.RemovedIDs) == 0 {
			return
		}
		removed := make(map[string]bool, len(ev.RemovedIDs))
		for _, id := range ev.RemovedIDs {
			removed[id] = true
		}
		pf, err := store.ReadPaneFile(configPath)
		if err != nil {
			log.WarningLog.Printf("pane bus reconciliation: failed to read pane file: %v", err)
			return
		}
		out := pf.Panes[:0]
		for _, p := range pf.Panes {
			if removed[p.TmuxPaneID] {
				az.Untrack(p.ID)
				continue
			}
			out = append(out, p)
		}
		if len(out) == len(pf.Panes) {
			return
		}
		pf.Panes = out
		if err := store.WriteLocked(configPath, pf, time.Now()); err != nil {
			log.WarningLog.Printf("pane bus reconciliation: failed to write pane file: %v", err)
		}
	}
}
