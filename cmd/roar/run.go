package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/classify"
	"github.com/roar-ml/roar/internal/dag"
	"github.com/roar-ml/roar/internal/hashreg"
	"github.com/roar-ml/roar/internal/ingest"
	"github.com/roar-ml/roar/internal/pkgcollect"
	"github.com/roar-ml/roar/internal/provenance"
	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/roarconfig"
	"github.com/roar-ml/roar/internal/runtimeinfo"
	"github.com/roar-ml/roar/internal/secretfilter"
	"github.com/roar-ml/roar/internal/store"
	"github.com/roar-ml/roar/internal/tracerrun"
	"github.com/roar-ml/roar/internal/vcs"
)

func newRunCommand(gf *globalFlags, build bool) *cobra.Command {
	var hashAlgos []string
	var stepName string

	use := "run [flags] <command...>"
	short := "Run a command with provenance tracking"
	jobType := store.JobTypeRun
	if build {
		use = "build [flags] <command...>"
		short = "Run a build command with provenance tracking (job_type=build)"
		jobType = store.JobTypeBuild
	}

	cmd := &cobra.Command{
		Use:                use,
		Short:              short,
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraced(cmd, gf, args, jobType, hashAlgos, stepName)
		},
	}
	cmd.Flags().StringArrayVar(&hashAlgos, "hash", nil, "hash algorithm to compute (repeatable); default from config")
	cmd.Flags().StringVarP(&stepName, "name", "n", "", "human-readable name for this step")
	return cmd
}

var stepRefPattern = regexp.MustCompile(`^@B?[0-9]+$`)

func runTraced(cmd *cobra.Command, gf *globalFlags, args []string, jobType store.JobType, hashAlgos []string, stepName string) error {
	app, err := setupApp(cmd, gf)
	if err != nil {
		return err
	}
	defer app.Close()
	ctx := app.ctx

	repo, err := vcs.Open(".")
	if err != nil {
		return rerr.Wrap(rerr.KindPreflight, "open git repository", err)
	}
	if err := repo.EnsureClean(); err != nil {
		return err
	}
	commit, err := repo.Commit()
	if err != nil {
		return rerr.Wrap(rerr.KindPreflight, "resolve HEAD commit", err)
	}
	branch, _ := repo.Branch()

	command, overrides := commandAndOverrides(args)

	session, err := app.store.GetActiveSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		session, err = app.store.CreateSession(ctx, app.roarDir, repo.Root(), commit, true)
		if err != nil {
			return err
		}
		if err := app.store.SetSessionMetadata(ctx, session.ID, map[string]any{
			"git_remote": repo.RemoteURL(),
			"created_at": time.Now().Format(time.RFC3339),
		}); err != nil {
			app.log.Warnf("record session metadata: %v", err)
		}
	}

	if stepRefPattern.MatchString(strings.ToUpper(command)) {
		resolver := dag.New(app.store)
		resolved, err := resolver.Resolve(ctx, command, overrides)
		if err != nil {
			return err
		}
		command = resolved.Command
		if len(resolved.StaleUpstream) > 0 {
			app.log.Warnf("replaying step with %d stale upstream dependency(ies)", len(resolved.StaleUpstream))
		}
	}

	tracerPath, err := tracerrun.FindTracer()
	if err != nil {
		return err
	}
	tracerLog, injectLog := tracerrun.TempLogPaths(app.roarDir, os.Getpid())

	jobUID := uuid.NewString()
	if app.cfg.Reversible.Enabled {
		if err := backupPriorOutputs(ctx, app.store, session.ID, command, app.roarDir, jobUID); err != nil {
			app.log.Warnf("back up previous run's outputs: %v", err)
		}
	}

	shellArgs := []string{"-c", command}
	runner := &tracerrun.Runner{
		TracerPath: tracerPath,
		TracerLog:  tracerLog,
		InjectLog:  injectLog,
		Args:       append([]string{tracerLog, injectLog, "--", "/bin/sh"}, shellArgs...),
		Dir:        repo.Root(),
		Env:        os.Environ(),
	}

	started := time.Now()
	result, err := runner.Run(ctx)
	ended := time.Now()
	if err != nil {
		return err
	}
	if result.Interrupted && result.KilledLogs {
		os.Exit(130)
	}

	tlog, err := ingest.LoadTracerLog(tracerLog)
	if err != nil {
		return err
	}
	slog := ingest.LoadSidecarLog(injectLog)
	defer func() {
		_ = os.Remove(tracerLog)
		_ = os.Remove(injectLog)
	}()

	classifyCtx := &classify.Context{
		SidecarInjectDir:       slog.RoarInjectDir,
		GitRepoRoot:            repo.Root(),
		IsTracked:              repo.IsTracked,
		InterpreterBasePrefix:  slog.SysBasePrefix,
		InterpreterPrefix:      slog.SysPrefix,
		InstalledFiles:         slog.InstalledPackages,
	}
	readResults, _ := classify.ClassifyAll(classifyCtx, tlog.ReadFiles)
	writeResults, _ := classify.ClassifyAll(classifyCtx, tlog.WrittenFiles)

	var classifiedReads []provenance.ClassifiedPath
	for path, res := range readResults {
		classifiedReads = append(classifiedReads, provenance.ClassifiedPath{
			Path:           path,
			InSitePackages: res.Class == classify.ClassPackage,
		})
	}
	noiseCfg := provenance.DefaultNoiseConfig()
	filteredReads := provenance.FilterReads(noiseCfg, classifiedReads)
	filteredWrites := provenance.FilterWrites(noiseCfg, tlog.WrittenFiles)

	var unmanaged []string
	for path, res := range readResults {
		if res.Class == classify.ClassUnmanaged {
			unmanaged = append(unmanaged, path)
		}
	}

	installedFiles := slog.InstalledPackages
	_ = installedFiles
	classifiedPkgs := map[string]string{}
	for _, res := range readResults {
		if res.Class == classify.ClassPackage && res.Package != "" {
			classifiedPkgs[res.Package] = ""
		}
	}
	pipPkgs := pkgcollect.UsedPip(keys(slog.UsedPackages), classifiedPkgs)

	pc := pkgcollect.New()
	osPkgs := pc.OSPackages(ctx, tlog.ReadFiles, setOf(pipPkgs), slog.SysPrefix)

	rtCollector := runtimeinfo.New()
	rtInfo := rtCollector.Collect(ctx, command, started, ended,
		runtimeinfo.OS{}, runtimeinfo.Interpreter{Version: slog.SysPrefix}, slog.EnvReads)

	buildProcs := toBuildProcesses(tlog.Processes)
	gitInfo := provenance.GitInfo{Commit: commit, Branch: branch, RemoteURL: repo.RemoteURL(), Clean: true}
	pkgInfo := provenance.Packages{
		Pip:       toVersionMap(pipPkgs, slog.InstalledPackages),
		Dpkg:      osPkgs,
		BuildDpkg: pc.BuildToolPackages(ctx, buildProcs, slog.SysPrefix),
		BuildPip:  pkgcollect.BuildPipPackages(buildProcs, slog.SysPrefix, slog.InstalledPackages),
	}
	rec := provenance.Assemble(repo.Root(), gitInfo, pkgInfo, unmanaged, filteredReads, filteredWrites, tlog.Processes, rtInfo)

	filter := secretfilter.New(secretfilterConfigFrom(app.cfg))
	filteredCommand, _ := filter.FilterString(command, "command")

	algos := resolveHashAlgos(hashAlgos, app.cfg.Hash.Algorithms)
	registry := hashreg.New(app.store.HashCache())

	inputs := hashPaths(registry, filteredReads, algos)
	outputs := hashPaths(registry, filteredWrites, algos)

	metadataJSON := provenanceMetadataJSON(rec)
	telemetryJSON := provenanceTelemetryJSON(rec)

	jobID, _, err := app.store.RecordJob(ctx, session.ID, store.RecordJobInput{
		JobUID:    jobUID,
		Command:   filteredCommand,
		StartedAt: started,
		GitRepo:   repo.Root(),
		GitCommit: commit,
		GitBranch: branch,
		Duration:  ended.Sub(started),
		ExitCode:  result.ExitCode,
		Inputs:    inputs,
		Outputs:   outputs,
		Metadata:  metadataJSON,
		Telemetry: telemetryJSON,
		JobType:   jobType,
		StepName:  stepName,
	})
	if err != nil {
		return err
	}

	app.log.Infof("recorded job %s (exit=%d)", jobID, result.ExitCode)
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}

// backupPriorOutputs finds the most recent job in this session that ran the
// identical command and preserves its recorded output files under
// .roar/backups/<job_uid>/ before the new run overwrites them (spec §5/§6,
// "[reversible] enabled").
func backupPriorOutputs(ctx context.Context, st *store.Store, sessionID, command, roarDir, jobUID string) error {
	steps, err := st.GetSteps(ctx, sessionID)
	if err != nil {
		return err
	}
	var prior *store.Job
	for i := range steps {
		if steps[i].Command == command {
			prior = &steps[i]
		}
	}
	if prior == nil || len(prior.Outputs) == 0 {
		return nil
	}
	paths := make([]string, 0, len(prior.Outputs))
	for _, o := range prior.Outputs {
		paths = append(paths, o.Path)
	}
	return tracerrun.BackupOutputs(roarDir, jobUID, paths)
}

func commandAndOverrides(args []string) (string, map[string]string) {
	if len(args) == 0 {
		return "", nil
	}
	if !stepRefPattern.MatchString(strings.ToUpper(args[0])) {
		return strings.Join(args, " "), nil
	}
	overrides := map[string]string{}
	for _, a := range args[1:] {
		if !strings.HasPrefix(a, "--") {
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(a, "--"), "=", 2)
		if len(kv) == 2 {
			overrides[kv[0]] = kv[1]
		}
	}
	return args[0], overrides
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func setOf(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

// toBuildProcesses adapts the tracer's observed process list (each command
// is a space-joined argv) into the resolved-path/basename shape the
// build-tool-dpkg and build-pip collectors need.
func toBuildProcesses(procs []provenance.ProcessObservation) []pkgcollect.Process {
	out := make([]pkgcollect.Process, 0, len(procs))
	for _, p := range procs {
		argv0 := p.Command
		if idx := strings.IndexByte(argv0, ' '); idx >= 0 {
			argv0 = argv0[:idx]
		}
		if argv0 == "" {
			continue
		}
		out = append(out, pkgcollect.Process{ResolvedPath: argv0, Basename: argv0})
	}
	return out
}

func toVersionMap(names []string, versions map[string]string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = versions[n]
	}
	return out
}

func hashPaths(registry *hashreg.Registry, paths []string, algos []hashreg.Algorithm) []store.PathHashes {
	out := make([]store.PathHashes, 0, len(paths))
	for _, p := range paths {
		digests, err := registry.Hash(p, algos)
		if err != nil || len(digests) == 0 {
			continue
		}
		hashes := make([]store.ArtifactHash, 0, len(digests))
		for algo, digest := range digests {
			hashes = append(hashes, store.ArtifactHash{Algorithm: string(algo), Digest: digest})
		}
		info, statErr := os.Stat(p)
		var size int64
		if statErr == nil {
			size = info.Size()
		}
		out = append(out, store.PathHashes{Path: p, Hashes: hashes, Size: size})
	}
	return out
}

func resolveHashAlgos(flagAlgos, configured []string) []hashreg.Algorithm {
	names := flagAlgos
	if len(names) == 0 {
		names = configured
	}
	algos := make([]hashreg.Algorithm, 0, len(names))
	for _, n := range names {
		a, err := hashreg.ParseAlgorithm(n)
		if err == nil {
			algos = append(algos, a)
		}
	}
	if len(algos) == 0 {
		algos = []hashreg.Algorithm{hashreg.Blake3}
	}
	return algos
}

func secretfilterConfigFrom(cfg roarconfig.Config) secretfilter.Config {
	return secretfilter.Config{
		Enabled:        cfg.Filters.Enabled,
		ExplicitValues: cfg.Filters.ExplicitValues,
		EnvVarNames:    cfg.Filters.EnvVarNames,
		Allowlist:      cfg.Filters.Allowlist,
	}
}

// provenanceMetadataJSON marshals the full §4.9 record (packages, runtime
// facts, read/written files, unmanaged code, process tree) into the
// Job.metadata blob.
func provenanceMetadataJSON(rec provenance.Record) string {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Sprintf(`{"repo_root":%q,"git_commit":%q,"process_count":%d}`,
			rec.RepoRoot, rec.Git.Commit, len(rec.Processes))
	}
	return string(b)
}

// provenanceTelemetryJSON marshals the experiment-tracker analyzer findings
// (external tracker URLs/run dirs, spec §3 and §4.9's analysis block) into
// the Job.telemetry blob. Empty when no tracker was detected.
func provenanceTelemetryJSON(rec provenance.Record) string {
	if len(rec.Analysis) == 0 {
		return ""
	}
	b, err := json.Marshal(rec.Analysis)
	if err != nil {
		return ""
	}
	return string(b)
}
