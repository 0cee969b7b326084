// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/tanmi-dock/tanmidock/internal/classify"
	"github.com/tanmi-dock/tanmidock/internal/downloader"
	"github.com/tanmi-dock/tanmidock/internal/linker"
	"github.com/tanmi-dock/tanmidock/internal/manifest"
	"github.com/tanmi-dock/tanmidock/internal/pathutil"
	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/registry"
	"github.com/tanmi-dock/tanmidock/internal/tderrors"
	"github.com/tanmi-dock/tanmidock/internal/txlog"
)

const linkShortHelp = `Link a project's declared dependencies`
const linkLongHelp = `
link discovers the project's manifest, classifies each declared dependency
against the Store and the project's current 3rdparty tree, and reconciles
them: repairing mismatches before linking what the Store already has, and
downloading what it doesn't (spec §4.8, §4.9, data flow in §2).
`

// stringSlice is a repeatable flag.Value collecting every occurrence in
// order, e.g. -p mac -p win.
type stringSlice []string

func (s *stringSlice) String() string {
	if len(*s) == 0 {
		return "<none>"
	}
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

type linkCommand struct {
	platforms  stringSlice
	configs    stringSlice
	yes        bool
	noDownload bool
	dryRun     bool
}

func (cmd *linkCommand) Name() string      { return "link" }
func (cmd *linkCommand) Args() string      { return "[path]" }
func (cmd *linkCommand) ShortHelp() string { return linkShortHelp }
func (cmd *linkCommand) LongHelp() string  { return linkLongHelp }
func (cmd *linkCommand) Hidden() bool      { return false }

func (cmd *linkCommand) Register(fs *flag.FlagSet) {
	fs.Var(&cmd.platforms, "p", "target platform key to link (repeatable); defaults to the project's previously linked platforms")
	fs.Var(&cmd.platforms, "platform", "alias for -p")
	fs.Var(&cmd.configs, "config", "optional sibling manifest config to merge in by name (repeatable)")
	fs.BoolVar(&cmd.yes, "yes", false, "skip the confirmation before backing up and replacing a local directory")
	fs.BoolVar(&cmd.noDownload, "no-download", false, "classify and link only; never invoke the downloader")
	fs.BoolVar(&cmd.dryRun, "dry-run", false, "report what would happen without changing anything")
}

func (cmd *linkCommand) Run(e *env, args []string) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}

	projectPath, err := projectPathFrom(args)
	if err != nil {
		return err
	}

	safety, err := pathutil.IsPathSafe(projectPath)
	if err != nil {
		return err
	}
	if !safety.Safe {
		return tderrors.PathUnsafe(projectPath, safety.Reason)
	}

	manifestPath, ok := manifest.Discover(projectPath)
	if !ok {
		return tderrors.New(tderrors.KindUsageError, "no "+manifest.FileName+" found under "+projectPath)
	}

	primary, err := readManifest(manifestPath)
	if err != nil {
		return err
	}

	available, err := manifest.DiscoverOptionalConfigs(manifestPath)
	if err != nil {
		return err
	}
	selected, err := manifest.SelectOptionalConfigs(available, isTerminal(), []string(cmd.configs), promptOptionalConfigs)
	if err != nil {
		return err
	}
	optionals, err := manifest.LoadOptionalConfigs(manifestPath, selected)
	if err != nil {
		return err
	}
	merged := manifest.Merge(primary, optionals)

	fp := pathutil.HashPath(projectPath)
	existing, hadExisting := e.reg.GetProject(fp)
	var oldDeps []registry.DependencyRef
	if hadExisting {
		oldDeps = append(oldDeps, existing.Dependencies...)
	}

	platforms, err := cmd.resolvePlatforms(existing, hadExisting)
	if err != nil {
		return err
	}

	reposByName := make(map[string]manifest.Repo, len(merged.Repos.Common))
	statuses := make([]*classify.DependencyStatus, 0, len(merged.Repos.Common))
	for _, repo := range merged.Repos.Common {
		reposByName[repo.LibName()] = repo
		local := filepath.Join(projectPath, "3rdparty", repo.LibName())
		ds, err := classify.Classify(e.st, local, repo.LibName(), repo.Commit, platforms)
		if err != nil {
			return errors.Wrapf(err, "classifying %s", repo.LibName())
		}
		statuses = append(statuses, ds)
	}

	plan := classify.Plan(statuses)

	if cmd.dryRun {
		writeLinkPlan(e, plan)
		return nil
	}

	if len(plan) == 0 {
		e.Log.OK("%s is already up to date", projectPath)
		return nil
	}

	return e.withLock(func() error {
		return cmd.apply(e, projectPath, fp, merged, reposByName, statuses, plan, platforms, selected, oldDeps)
	})
}

func readManifest(path string) (*manifest.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening manifest %s", path)
	}
	defer f.Close()
	return manifest.Parse(f, path)
}

func (cmd *linkCommand) resolvePlatforms(existing *registry.Project, hadExisting bool) ([]platform.Platform, error) {
	if len(cmd.platforms) > 0 {
		seen := platform.NewSet()
		out := make([]platform.Platform, 0, len(cmd.platforms))
		for _, key := range cmd.platforms {
			p, err := platform.FromCLIKey(key)
			if err != nil {
				return nil, wrapUsage("%v", err)
			}
			if !seen.Has(p) {
				seen.Add(p)
				out = append(out, p)
			}
		}
		return out, nil
	}
	if hadExisting && len(existing.Platforms) > 0 {
		return existing.Platforms, nil
	}
	return nil, wrapUsage("no platforms requested; pass -p at least once when linking a project for the first time")
}

func writeLinkPlan(e *env, plan []*classify.DependencyStatus) {
	if len(plan) == 0 {
		e.Log.Info("nothing to do")
		return
	}
	for _, ds := range plan {
		e.Log.Logf("%s\t%s\t%s\n", ds.Kind, ds.LibName, ds.Commit)
	}
}

func promptOptionalConfigs(available []string) ([]string, error) {
	fmt.Fprintf(os.Stdout, "optional configs available: %s\n", strings.Join(available, ", "))
	fmt.Fprint(os.Stdout, `select by name (comma-separated), "all", or leave blank for none: `)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return nil, nil
	case "all":
		return available, nil
	default:
		parts := strings.Split(line, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out, nil
	}
}

func isTerminal() bool {
	return terminal.IsTerminal(int(os.Stdin.Fd()))
}

func backupTimestamp() string {
	return time.Now().UTC().Format("20060102150405")
}

// apply executes the plan's filesystem effects under a transaction, then
// reconciles the Registry once against the full dependency set (spec §3's
// recommended collect -> mutate FS -> mutate Registry once -> save phasing).
func (cmd *linkCommand) apply(e *env, projectPath, fp string, merged *manifest.Manifest, reposByName map[string]manifest.Repo, statuses, plan []*classify.DependencyStatus, platforms []platform.Platform, selectedConfigs []string, oldDeps []registry.DependencyRef) error {
	if needsConfirmation(plan) && !cmd.yes {
		if !isTerminal() {
			return tderrors.New(tderrors.KindUsageError, "refusing to replace local directories without --yes in non-interactive mode")
		}
		if !confirm("one or more local directories will be backed up and replaced with links; continue?") {
			return nil
		}
	}

	tx, err := txlog.Open(e.Home, projectPath)
	if err != nil {
		return err
	}

	var bin string
	if planNeedsDownload(plan) && !cmd.noDownload && e.cfg.AutoDownload {
		bin, err = exec.LookPath("codepac")
		if err != nil {
			return tderrors.New(tderrors.KindDownloaderMissing, "codepac binary not found on PATH: "+err.Error())
		}
	}
	dl := downloader.New(bin)
	dl.Proxy = e.cfg.Proxy.ToDownloader()

	skippedDownload := map[string]bool{}
	for _, ds := range plan {
		var stepErr error
		switch ds.Kind {
		case classify.KindRelink:
			stepErr = cmd.relink(e, tx, ds, platforms)
		case classify.KindReplace:
			stepErr = cmd.replace(e, tx, ds, platforms)
		case classify.KindAbsorb:
			stepErr = cmd.absorb(e, tx, ds, platforms)
		case classify.KindLinkNew:
			stepErr = cmd.linkNew(e, tx, ds, platforms)
		case classify.KindMissing:
			if cmd.noDownload || !e.cfg.AutoDownload {
				skippedDownload[ds.LibName] = true
				e.Log.Warn("%s is missing %v; skipping download", ds.LibName, ds.MissingPlatforms)
				continue
			}
			stepErr = cmd.download(e, tx, dl, reposByName[ds.LibName], merged.Vars, ds, platforms)
		}
		if stepErr != nil {
			for _, rbErr := range tx.Rollback() {
				e.Log.Warn("%v", rbErr)
			}
			return stepErr
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	now := time.Now()
	deps := make([]registry.DependencyRef, 0, len(statuses))
	for _, ds := range statuses {
		repo := reposByName[ds.LibName]
		matPlatforms := materializedPlatforms(ds, platforms, skippedDownload)

		for _, p := range matPlatforms {
			key := registry.StoreKey(ds.LibName, ds.Commit, p)
			if _, ok := e.reg.GetStore(key); !ok {
				sz, _ := e.st.GetSize(ds.LibName, ds.Commit, p)
				e.reg.AddStore(&registry.StoreEntry{LibName: ds.LibName, Commit: ds.Commit, Platform: p, Branch: repo.Branch, URL: repo.URL, Size: sz, CreatedAt: now, LastAccess: now})
			}
			e.reg.AddStoreReference(key, fp)
			e.reg.UpdateStore(key, func(s *registry.StoreEntry) { s.LastAccess = now })
		}

		if lib, ok := e.reg.GetLibrary(ds.LibName, ds.Commit); ok {
			lib.LastAccess = now
			lib.Platforms = e.reg.GetLibraryPlatforms(ds.LibName, ds.Commit)
			e.reg.AddLibrary(lib)
		} else {
			e.reg.AddLibrary(&registry.Library{LibName: ds.LibName, Commit: ds.Commit, Branch: repo.Branch, URL: repo.URL, Platforms: e.reg.GetLibraryPlatforms(ds.LibName, ds.Commit), CreatedAt: now, LastAccess: now})
		}

		primary := platform.General
		if !ds.General && len(matPlatforms) > 0 {
			primary = matPlatforms[0]
		}
		deps = append(deps, registry.DependencyRef{
			LibName:    ds.LibName,
			Commit:     ds.Commit,
			Platform:   primary,
			LinkedPath: filepath.Join("3rdparty", ds.LibName),
		})
	}

	dropStaleReferences(e.reg, fp, oldDeps, deps)

	if _, ok := e.reg.GetProject(fp); ok {
		e.reg.UpdateProject(fp, func(p *registry.Project) {
			p.Path = projectPath
			p.ConfigPath = merged.Path()
			p.LastLinked = now
			p.Platforms = platforms
			p.Dependencies = deps
			p.OptionalConfigs = selectedConfigs
		})
	} else {
		e.reg.AddProject(&registry.Project{
			Fingerprint:     fp,
			Path:            projectPath,
			ConfigPath:      merged.Path(),
			LastLinked:      now,
			Platforms:       platforms,
			Dependencies:    deps,
			OptionalConfigs: selectedConfigs,
		})
	}

	if err := e.reg.Save(); err != nil {
		return err
	}

	e.Log.OK("linked %d dependenc(y/ies) for %s", len(deps), projectPath)
	return nil
}

func needsConfirmation(plan []*classify.DependencyStatus) bool {
	for _, ds := range plan {
		if ds.Kind == classify.KindReplace {
			return true
		}
	}
	return false
}

func planNeedsDownload(plan []*classify.DependencyStatus) bool {
	for _, ds := range plan {
		if ds.Kind == classify.KindMissing {
			return true
		}
	}
	return false
}

// materializedPlatforms reports which platforms a dependency actually has
// backing store content for, after the plan executed: a general library
// always collapses to just the General sentinel, and a missing download
// that was skipped keeps only the subset that was already present.
func materializedPlatforms(ds *classify.DependencyStatus, requested []platform.Platform, skippedDownload map[string]bool) []platform.Platform {
	if ds.General {
		return []platform.Platform{platform.General}
	}
	if skippedDownload[ds.LibName] {
		return platform.NewSet(requested...).Sub(platform.NewSet(ds.MissingPlatforms...)).Slice()
	}
	return requested
}

// dropStaleReferences removes Registry store references left over from a
// re-link that dropped a dependency or moved it to a new commit, mirroring
// the per-platform cleanup Registry.RemoveProject performs wholesale.
func dropStaleReferences(reg *registry.Registry, fp string, oldDeps, newDeps []registry.DependencyRef) {
	current := make(map[string]string, len(newDeps))
	for _, d := range newDeps {
		current[d.LibName] = d.Commit
	}
	for _, old := range oldDeps {
		if commit, ok := current[old.LibName]; ok && commit == old.Commit {
			continue
		}
		for _, p := range reg.GetLibraryPlatforms(old.LibName, old.Commit) {
			reg.RemoveStoreReference(registry.StoreKey(old.LibName, old.Commit, p), fp)
		}
	}
}

func (cmd *linkCommand) relink(e *env, tx *txlog.Transaction, ds *classify.DependencyStatus, platforms []platform.Platform) error {
	if ds.General {
		target := e.st.GetPath(ds.LibName, ds.Commit, platform.General)
		op := &txlog.Operation{Type: txlog.KindLink, Target: ds.LocalPath, Source: target}
		if err := tx.Record(op); err != nil {
			return err
		}
		if err := linker.LinkGeneral(target, ds.LocalPath); err != nil {
			return errors.Wrapf(err, "relinking %s", ds.LibName)
		}
		return tx.Complete(op)
	}
	if len(platforms) == 1 {
		target := e.st.GetPath(ds.LibName, ds.Commit, platforms[0])
		op := &txlog.Operation{Type: txlog.KindLink, Target: ds.LocalPath, Source: target}
		if err := tx.Record(op); err != nil {
			return err
		}
		if _, err := linker.ReplaceWithLink(ds.LocalPath, target, ""); err != nil {
			return errors.Wrapf(err, "relinking %s", ds.LibName)
		}
		return tx.Complete(op)
	}
	op := &txlog.Operation{Type: txlog.KindLink, Target: ds.LocalPath}
	if err := tx.Record(op); err != nil {
		return err
	}
	if err := linker.LinkMultiPlatform(e.st, ds.LocalPath, ds.LibName, ds.Commit, platforms); err != nil {
		return errors.Wrapf(err, "relinking %s", ds.LibName)
	}
	return tx.Complete(op)
}

func (cmd *linkCommand) replace(e *env, tx *txlog.Transaction, ds *classify.DependencyStatus, platforms []platform.Platform) error {
	if ds.General || len(platforms) == 1 {
		p := platform.General
		if !ds.General {
			p = platforms[0]
		}
		target := e.st.GetPath(ds.LibName, ds.Commit, p)
		backupPath := ds.LocalPath + ".backup." + backupTimestamp()
		op := &txlog.Operation{Type: txlog.KindLink, Target: ds.LocalPath, Source: target, Backup: backupPath}
		if err := tx.Record(op); err != nil {
			return err
		}
		usedBackup, err := linker.ReplaceWithLink(ds.LocalPath, target, backupPath)
		if err != nil {
			return errors.Wrapf(err, "replacing %s", ds.LibName)
		}
		op.Backup = usedBackup
		return tx.Complete(op)
	}

	backup := ds.LocalPath + ".backup." + backupTimestamp()
	op := &txlog.Operation{Type: txlog.KindReplace, Target: ds.LocalPath, Source: backup, Backup: backup}
	if err := tx.Record(op); err != nil {
		return err
	}
	if err := os.Rename(ds.LocalPath, backup); err != nil {
		return errors.Wrapf(err, "backing up %s", ds.LocalPath)
	}
	if err := linker.LinkMultiPlatform(e.st, ds.LocalPath, ds.LibName, ds.Commit, platforms); err != nil {
		return errors.Wrapf(err, "replacing %s", ds.LibName)
	}
	return tx.Complete(op)
}

func (cmd *linkCommand) absorb(e *env, tx *txlog.Transaction, ds *classify.DependencyStatus, platforms []platform.Platform) error {
	if ds.General {
		target := e.st.GetPath(ds.LibName, ds.Commit, platform.General)
		absorbOp := &txlog.Operation{Type: txlog.KindAbsorb, Target: target, Source: ds.LocalPath}
		if err := tx.Record(absorbOp); err != nil {
			return err
		}
		if _, err := e.st.AbsorbGeneral(ds.LocalPath, ds.LibName, ds.Commit); err != nil {
			return errors.Wrapf(err, "absorbing %s", ds.LibName)
		}
		if err := tx.Complete(absorbOp); err != nil {
			return err
		}

		linkOp := &txlog.Operation{Type: txlog.KindLink, Target: ds.LocalPath, Source: target}
		if err := tx.Record(linkOp); err != nil {
			return err
		}
		if err := linker.LinkGeneral(target, ds.LocalPath); err != nil {
			return errors.Wrapf(err, "linking absorbed %s", ds.LibName)
		}
		return tx.Complete(linkOp)
	}

	absorbOp := &txlog.Operation{Type: txlog.KindAbsorb, Target: e.st.CommitPath(ds.LibName, ds.Commit), Source: ds.LocalPath}
	if err := tx.Record(absorbOp); err != nil {
		return err
	}
	res, err := e.st.AbsorbLib(ds.LocalPath, platforms, ds.LibName, ds.Commit, nil)
	if err != nil {
		return errors.Wrapf(err, "absorbing %s", ds.LibName)
	}
	if len(res.Skipped) > 0 {
		e.Log.Verbose("%s: %d item(s) already present in store", ds.LibName, len(res.Skipped))
	}
	if err := tx.Complete(absorbOp); err != nil {
		return err
	}

	linkOp := &txlog.Operation{Type: txlog.KindLink, Target: ds.LocalPath}
	if err := tx.Record(linkOp); err != nil {
		return err
	}
	os.RemoveAll(ds.LocalPath)
	if err := linker.LinkLibrary(e.st, ds.LocalPath, ds.LibName, ds.Commit, platforms); err != nil {
		return errors.Wrapf(err, "linking absorbed %s", ds.LibName)
	}
	return tx.Complete(linkOp)
}

func (cmd *linkCommand) linkNew(e *env, tx *txlog.Transaction, ds *classify.DependencyStatus, platforms []platform.Platform) error {
	if ds.General {
		target := e.st.GetPath(ds.LibName, ds.Commit, platform.General)
		op := &txlog.Operation{Type: txlog.KindLink, Target: ds.LocalPath, Source: target}
		if err := tx.Record(op); err != nil {
			return err
		}
		if err := linker.LinkGeneral(target, ds.LocalPath); err != nil {
			return errors.Wrapf(err, "linking %s", ds.LibName)
		}
		return tx.Complete(op)
	}
	op := &txlog.Operation{Type: txlog.KindLink, Target: ds.LocalPath}
	if err := tx.Record(op); err != nil {
		return err
	}
	if err := linker.LinkLibrary(e.st, ds.LocalPath, ds.LibName, ds.Commit, platforms); err != nil {
		return errors.Wrapf(err, "linking %s", ds.LibName)
	}
	return tx.Complete(op)
}

func (cmd *linkCommand) download(e *env, tx *txlog.Transaction, dl *downloader.Downloader, repo manifest.Repo, vars map[string]string, ds *classify.DependencyStatus, platforms []platform.Platform) error {
	sparse, err := manifest.ResolveSparse(repo.Dir, repo.Sparse, vars)
	if err != nil {
		return err
	}

	var downloadOp *txlog.Operation
	var recordErr error
	res, err := dl.DownloadToTemp(context.Background(), downloader.Options{
		URL:       repo.URL,
		Commit:    repo.Commit,
		Branch:    repo.Branch,
		LibName:   ds.LibName,
		Platforms: ds.MissingPlatforms,
		Sparse:    sparse,
		Vars:      vars,
		OnProgress: func(line string) {
			e.Log.Verbose("%s: %s", ds.LibName, line)
		},
		OnTempDirCreated: func(dir string) {
			// Recorded with Completed=false before codepac ever runs, so a
			// crash mid-download leaves a pending op naming the temp dir.
			downloadOp = &txlog.Operation{Type: txlog.KindDownload, Target: dir}
			recordErr = tx.Record(downloadOp)
		},
	})
	if recordErr != nil {
		return recordErr
	}
	if err != nil {
		return errors.Wrapf(err, "downloading %s", ds.LibName)
	}
	defer os.RemoveAll(res.TempDir)
	if err := tx.Complete(downloadOp); err != nil {
		return err
	}

	absorbOp := &txlog.Operation{Type: txlog.KindAbsorb, Target: e.st.CommitPath(ds.LibName, ds.Commit), Source: res.LibDir}
	if err := tx.Record(absorbOp); err != nil {
		return err
	}
	if len(res.PlatformDirs) == 0 && ds.General {
		if _, err := e.st.AbsorbGeneral(res.LibDir, ds.LibName, ds.Commit); err != nil {
			return errors.Wrapf(err, "absorbing downloaded %s", ds.LibName)
		}
	} else {
		if _, err := e.st.AbsorbLib(res.LibDir, ds.MissingPlatforms, ds.LibName, ds.Commit, nil); err != nil {
			return errors.Wrapf(err, "absorbing downloaded %s", ds.LibName)
		}
	}
	if err := tx.Complete(absorbOp); err != nil {
		return err
	}

	linkOp := &txlog.Operation{Type: txlog.KindLink, Target: ds.LocalPath}
	if err := tx.Record(linkOp); err != nil {
		return err
	}
	if ds.General {
		target := e.st.GetPath(ds.LibName, ds.Commit, platform.General)
		if err := linker.LinkGeneral(target, ds.LocalPath); err != nil {
			return errors.Wrapf(err, "linking %s", ds.LibName)
		}
	} else if err := linker.LinkLibrary(e.st, ds.LocalPath, ds.LibName, ds.Commit, platforms); err != nil {
		return errors.Wrapf(err, "linking %s", ds.LibName)
	}
	return tx.Complete(linkOp)
}
