package cmd

import (
	"time"

	"dmux/store"
)

// persistAddPane appends pane to the on-disk pane file under the
// single-writer lock, the same read-modify-write-through-WriteLocked shape
// httpapi uses, needed because lifecycle.Controller.Create only manipulates
// tmux/git state and leaves persistence to its caller.
func persistAddPane(configPath string, pane store.Pane) error {
	pf, err := store.ReadPaneFile(configPath)
	if err != nil {
		return err
	}
	pf.Panes = append(pf.Panes, pane)
	return store.WriteLocked(configPath, pf, time.Now())
}

// persistUpdatePane rewrites one pane record in place by id.
func persistUpdatePane(configPath, paneID string, mutate func(*store.Pane)) error {
	pf, err := store.ReadPaneFile(configPath)
	if err != nil {
		return err
	}
	for i := range pf.Panes {
		if pf.Panes[i].ID == paneID {
			mutate(&pf.Panes[i])
			break
		}
	}
	return store.WriteLocked(configPath, pf, time.Now())
}

// persistRemovePane drops the pane record with the given id.
func persistRemovePane(configPath, paneID string) error {
	pf, err := store.ReadPaneFile(configPath)
	if err != nil {
		return err
	}
	out := pf.Panes[:0]
	for _, p := range pf.Panes {
		if p.ID != paneID {
			out = append(out, p)
		}
	}
	pf.Panes = out
	return store.WriteLocked(configPath, pf, time.Now())
}
