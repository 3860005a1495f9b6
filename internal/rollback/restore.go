// Package rollback reinstalls tools that a journaled run removed from
// conflicting package managers.
package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blackwell-systems/bootstrap-env/internal/installer"
	"github.com/blackwell-systems/bootstrap-env/internal/logger"
	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
	"github.com/blackwell-systems/bootstrap-env/internal/store"
)

// ActionRestore marks a removal that has been undone.
const ActionRestore = "restore"

// Removal is a conflicting copy removed during a run.
type Removal struct {
	Tool     string
	Manager  pkgmgr.Kind
	Restored bool
}

// Result summarizes a restore.
type Result struct {
	Restored []Removal
	Skipped  []Removal
	Failed   []Removal
}

// Restorer undoes conflict removals recorded in the journal.
type Restorer struct {
	store    *store.Store
	registry *pkgmgr.Registry
	log      *slog.Logger
}

// New creates a Restorer.
func New(st *store.Store, registry *pkgmgr.Registry, log *slog.Logger) *Restorer {
	if log == nil {
		log = logger.Discard()
	}
	return &Restorer{store: st, registry: registry, log: log}
}

// FindRun resolves ref to a run. "latest" (or an empty ref) means the
// newest run with removals still to restore, not simply the newest run.
// Anything else is a run ID or a unique prefix of one.
func (r *Restorer) FindRun(ref string) (*store.Run, error) {
	if ref = strings.TrimSpace(ref); ref == "" || ref == "latest" {
		return r.store.LatestRunWithPending(installer.ActionRemove, ActionRestore)
	}
	return r.store.FindRun(ref)
}

// Pending lists the removals recorded for runID, marking those already
// restored.
func (r *Restorer) Pending(runID string) ([]Removal, error) {
	removed, err := r.store.GetEvents(runID, installer.ActionRemove)
	if err != nil {
		return nil, fmt.Errorf("failed to read removals: %w", err)
	}
	restored, err := r.store.GetEvents(runID, ActionRestore)
	if err != nil {
		return nil, fmt.Errorf("failed to read restores: %w", err)
	}

	done := make(map[string]bool, len(restored))
	for _, e := range restored {
		done[e.Manager+"/"+e.Tool] = true
	}

	removals := make([]Removal, 0, len(removed))
	for _, e := range removed {
		removals = append(removals, Removal{
			Tool:     e.Tool,
			Manager:  pkgmgr.Kind(e.Manager),
			Restored: done[e.Manager+"/"+e.Tool],
		})
	}
	return removals, nil
}

// Restore reinstalls every copy runID removed through the manager it was
// removed from. Removals already restored, or whose tool is present again,
// are skipped, so Restore can be repeated after a partial failure.
func (r *Restorer) Restore(ctx context.Context, runID string) (*Result, error) {
	removals, err := r.Pending(runID)
	if err != nil {
		return nil, err
	}

	recorder := r.store.Recorder(runID)
	result := &Result{}
	var failures []string

	for _, rm := range removals {
		if rm.Restored {
			result.Skipped = append(result.Skipped, rm)
			continue
		}

		if err := r.restoreOne(ctx, rm); err != nil {
			r.log.Error("restore failed", "tool", rm.Tool, "manager", rm.Manager, "error", err)
			result.Failed = append(result.Failed, rm)
			failures = append(failures, fmt.Sprintf("%s (%s): %v", rm.Tool, rm.Manager, err))
			continue
		}

		rm.Restored = true
		result.Restored = append(result.Restored, rm)
		r.log.Info("restored tool", "action", ActionRestore, "tool", rm.Tool, "manager", rm.Manager)
		if err := recorder.RecordEvent(ActionRestore, rm.Tool, string(rm.Manager), ""); err != nil {
			r.log.Warn("failed to journal restore", "tool", rm.Tool, "error", err)
		}
	}

	if len(failures) > 0 {
		return result, fmt.Errorf("restored %d/%d tools, %d failures: %v",
			len(result.Restored), len(removals)-len(result.Skipped), len(failures), failures)
	}
	return result, nil
}

func (r *Restorer) restoreOne(ctx context.Context, rm Removal) error {
	mgr, ok := r.registry.Get(rm.Manager)
	if !ok || !mgr.Available() {
		return pkgmgr.ErrUnavailable
	}

	present, err := mgr.IsInstalled(ctx, rm.Tool)
	if err != nil {
		return err
	}
	if present {
		r.log.Debug("tool already present", "tool", rm.Tool, "manager", rm.Manager)
		return nil
	}
	return mgr.Install(ctx, rm.Tool)
}
