package cmd

import (
	"context"
	"fmt"

	"dmux/action"
	"dmux/analyzer"
	"dmux/lifecycle"
	"dmux/merge"
	"dmux/store"
)

// registerActions wires every action.ID the dispatcher exposes to the
// concrete lifecycle/merge operations, persisting pane-record changes
// through configPath since neither Controller nor Session does so itself.
func registerActions(d *action.Dispatcher, lc *lifecycle.Controller, session *merge.Session, st *store.Store, az *analyzer.Analyzer, configPath string) {
	d.Register(action.ActionMerge, mergeHandler(session))
	d.Register(action.ActionClose, closeHandler(lc, st, configPath))
	d.Register(action.ActionRename, renameHandler(lc, configPath))
	d.Register(action.ActionDuplicate, duplicateHandler(lc, configPath))
	d.Register(action.ActionOpenInEditor, openInEditorHandler(lc))
	d.Register(action.ActionCopyPath, copyPathHandler(lc))
	d.Register(action.ActionToggleAutopilot, toggleAutopilotHandler(lc, az, configPath))
}

func mergeHandler(session *merge.Session) action.Handler {
	return func(ctx context.Context, pane store.Pane) (action.Result, error) {
		result, clean, err := session.Validate(ctx, pane, "")
		if err != nil {
			return action.Result{}, err
		}
		if !clean {
			return result, nil
		}
		return session.Execute(ctx, pane, "")
	}
}

func closeHandler(lc *lifecycle.Controller, st *store.Store, configPath string) action.Handler {
	return func(ctx context.Context, pane store.Pane) (action.Result, error) {
		options := []action.Option{
			{ID: string(lifecycle.CloseKillOnly), Label: "Kill pane only"},
		}
		if pane.HasWorktree() {
			options = append(options,
				action.Option{ID: string(lifecycle.CloseKillAndClean), Label: "Kill pane and remove worktree", Default: true},
				action.Option{ID: string(lifecycle.CloseKillCleanBranch), Label: "Kill pane, remove worktree and branch", Danger: true},
			)
		}
		onSelect := func(ctx context.Context, optionID string) (action.Result, error) {
			branch := st.Snapshot().Settings.BranchPrefix + pane.Slug
			if err := lc.Close(ctx, pane, branch, lifecycle.CloseChoice(optionID)); err != nil {
				return action.Result{}, err
			}
			if err := persistRemovePane(configPath, pane.ID); err != nil {
				return action.Result{}, err
			}
			return action.Success(fmt.Sprintf("closed %s", pane.Slug), true), nil
		}
		return action.Choice("Close pane", fmt.Sprintf("Close %s?", pane.Slug), options, onSelect), nil
	}
}

func renameHandler(lc *lifecycle.Controller, configPath string) action.Handler {
	return func(ctx context.Context, pane store.Pane) (action.Result, error) {
		onSubmit := func(ctx context.Context, value string) (action.Result, error) {
			if value == "" {
				return action.Err("name cannot be empty", true), nil
			}
			if err := lc.Rename(ctx, pane, value); err != nil {
				return action.Result{}, err
			}
			if err := persistUpdatePane(configPath, pane.ID, func(p *store.Pane) { p.Slug = value }); err != nil {
				return action.Result{}, err
			}
			return action.Success(fmt.Sprintf("renamed to %s", value), true), nil
		}
		return action.Input("Rename pane", "New name for this pane", pane.Slug, pane.Slug, onSubmit), nil
	}
}

func duplicateHandler(lc *lifecycle.Controller, configPath string) action.Handler {
	return func(ctx context.Context, pane store.Pane) (action.Result, error) {
		result, err := lc.Duplicate(ctx, pane, "")
		if err != nil {
			return action.Result{}, err
		}
		if result.NeedsAgentChoice {
			return agentChoiceResult(result.AvailableAgents), nil
		}
		if err := persistAddPane(configPath, result.Pane); err != nil {
			return action.Result{}, err
		}
		return action.Success(fmt.Sprintf("duplicated as %s", result.Pane.Slug), true), nil
	}
}

func agentChoiceResult(agents []store.Agent) action.Result {
	var opts []action.Option
	for _, a := range agents {
		opts = append(opts, action.Option{ID: string(a), Label: string(a)})
	}
	return action.Choice("Choose an agent", "Multiple agent CLIs are available.", opts, nil)
}

func openInEditorHandler(lc *lifecycle.Controller) action.Handler {
	return func(ctx context.Context, pane store.Pane) (action.Result, error) {
		if err := lc.OpenInEditor(ctx, pane); err != nil {
			return action.Result{}, err
		}
		return action.Success("opened in editor", true), nil
	}
}

func copyPathHandler(lc *lifecycle.Controller) action.Handler {
	return func(ctx context.Context, pane store.Pane) (action.Result, error) {
		if err := lc.CopyPath(pane); err != nil {
			return action.Result{}, err
		}
		return action.Success("path copied", true), nil
	}
}

func toggleAutopilotHandler(lc *lifecycle.Controller, az *analyzer.Analyzer, configPath string) action.Handler {
	return func(ctx context.Context, pane store.Pane) (action.Result, error) {
		updated := lc.ToggleAutopilot(pane)
		if az != nil {
			az.SetAutopilot(pane.ID, updated.Autopilot)
		}
		if err := persistUpdatePane(configPath, pane.ID, func(p *store.Pane) { p.Autopilot = updated.Autopilot }); err != nil {
			return action.Result{}, err
		}
		state := "disabled"
		if updated.Autopilot {
			state = "enabled"
		}
		return action.Success(fmt.Sprintf("autopilot %s", state), true), nil
	}
}
