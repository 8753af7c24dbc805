package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"lizzy/internal/domain"
	"lizzy/internal/events"
)

// State is a step of a pipeline run.
type State string

const (
	StateIdle            State = "idle"
	StateCoverageChecked State = "coverage_checked"
	StateRunning         State = "running"
	StateExported        State = "exported"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

var ErrNoScenes = errors.New("no scenes in the outline; nothing to write")

// CoverageError lists every outlined scene without brainstorm entries.
type CoverageError struct {
	Table   string
	Missing []domain.SceneKey
}

func (e *CoverageError) Error() string {
	names := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		names[i] = k.String()
	}
	if e.Table == "" {
		return fmt.Sprintf("no brainstorm table found; %d scene(s) lack brainstorm coverage: %s", len(e.Missing), strings.Join(names, "; "))
	}
	return fmt.Sprintf("%d scene(s) lack brainstorm coverage in %s: %s", len(e.Missing), e.Table, strings.Join(names, "; "))
}

type RunOptions struct {
	// Scenes restricts the run to these scenes. Empty means the whole outline.
	Scenes     []domain.SceneKey
	SkipExport bool
	ExportDir  string
	// OnScene is called after each scene is persisted.
	OnScene func(SceneReport)
}

type SceneReport struct {
	Act          int    `json:"act"`
	Scene        int    `json:"scene"`
	Title        string `json:"title,omitempty"`
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	DraftVersion int    `json:"draft_version"`
	Words        int    `json:"words"`
}

type Summary struct {
	State           State         `json:"state"`
	RunTable        string        `json:"run_table,omitempty"`
	BrainstormTable string        `json:"brainstorm_table,omitempty"`
	OutlineScenes   int           `json:"outline_scenes"`
	Attempted       int           `json:"attempted"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Scenes          []SceneReport `json:"scenes"`
	Export          *ExportResult `json:"export,omitempty"`
}

// runInputs is what every scene of a run shares.
type runInputs struct {
	meta       map[string]string
	chars      []domain.Character
	scenes     []domain.SceneOutline
	targets    []domain.SceneOutline
	brainstorm string
}

// Run writes every targeted scene in outline order. A scene's previous-scene
// context is the finalized text written for its predecessor, so scenes are
// generated strictly one after another. Generation failures are persisted as
// error markers and never stop the run. Missing brainstorm coverage stops the
// run before anything is written.
func (e Engine) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	log := e.log()
	wc := e.writerConfig()
	sum := Summary{State: StateIdle}

	cursor, err := e.Repo.LatestEventID(ctx)
	if err != nil {
		return sum, err
	}
	if e.Notifier.Active() {
		e.Notifier.Mark(cursor)
		defer e.Notifier.Flush(context.WithoutCancel(ctx))
	}

	in, err := e.loadRunInputs(ctx, wc, opts.Scenes)
	if err != nil {
		return sum, err
	}
	sum.State = StateCoverageChecked
	sum.OutlineScenes = len(in.scenes)
	sum.BrainstormTable = in.brainstorm

	if wc.RequireBrainstorm {
		missing, err := e.missingCoverage(ctx, in.brainstorm, in.targets)
		if err != nil {
			return sum, err
		}
		if len(missing) > 0 {
			sum.State = StateFailed
			cerr := &CoverageError{Table: in.brainstorm, Missing: missing}
			log.Error("brainstorm coverage check failed", zap.Int("missing", len(missing)), zap.String("table", in.brainstorm))
			if err := e.emit(ctx, events.TypeRunFailed, "write_run", "", events.EventPayload{"reason": cerr.Error(), "missing": missing}); err != nil {
				return sum, err
			}
			return sum, cerr
		}
	}

	runTable, err := e.Repo.CreateWriteRunTable(ctx)
	if err != nil {
		return sum, err
	}
	sum.RunTable = runTable
	sum.State = StateRunning
	if err := e.emit(ctx, events.TypeRunStarted, "write_run", runTable, events.EventPayload{
		"scenes": len(in.targets), "outline_scenes": len(in.scenes), "brainstorm_table": in.brainstorm, "format": wc.Format,
	}); err != nil {
		return sum, err
	}
	log.Info("write run started", zap.String("run_table", runTable), zap.Int("scenes", len(in.targets)), zap.String("brainstorm_table", in.brainstorm))

	for _, scene := range in.targets {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("run interrupted before %s: %w", scene.Key(), err)
		}
		report, err := e.writeScene(ctx, wc, in, runTable, scene)
		if err != nil {
			return sum, err
		}
		sum.Attempted++
		if report.OK {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		sum.Scenes = append(sum.Scenes, report)
		if opts.OnScene != nil {
			opts.OnScene(report)
		}
	}

	if !opts.SkipExport {
		res, err := e.Export(ctx, opts.ExportDir)
		if err != nil {
			return sum, fmt.Errorf("export: %w", err)
		}
		sum.Export = &res
	}
	sum.State = StateExported

	if err := e.emit(ctx, events.TypeRunCompleted, "write_run", runTable, events.EventPayload{
		"attempted": sum.Attempted, "succeeded": sum.Succeeded, "failed": sum.Failed, "outline_scenes": sum.OutlineScenes,
	}); err != nil {
		return sum, err
	}
	sum.State = StateDone
	log.Info("write run completed",
		zap.String("run_table", runTable),
		zap.Int("attempted", sum.Attempted),
		zap.Int("outline_scenes", sum.OutlineScenes),
		zap.Int("failed", sum.Failed))
	return sum, nil
}

func (e Engine) writeScene(ctx context.Context, wc WriterConfig, in runInputs, runTable string, scene domain.SceneOutline) (SceneReport, error) {
	key := scene.Key()
	log := e.log().With(zap.Int("act", key.Act), zap.Int("scene", key.Scene), zap.String("title", scene.Title))

	inputs, err := e.assemble(ctx, wc, in.meta, in.chars, in.scenes, scene, in.brainstorm)
	if err != nil {
		return SceneReport{}, err
	}
	prompt := BuildPrompt(inputs, wc)
	res := e.generate(ctx, prompt)
	// a generated scene is saved even if the run is being cancelled
	ctx = context.WithoutCancel(ctx)
	draft, err := e.persistScene(ctx, runTable, scene, prompt, res)
	if err != nil {
		return SceneReport{}, err
	}

	report := SceneReport{Act: key.Act, Scene: key.Scene, Title: scene.Title, OK: res.OK(), DraftVersion: draft.Version}
	entityID := sceneEntityID(key)
	if res.OK() {
		report.Words = len(strings.Fields(res.Text))
		scenesTotal.WithLabelValues(outcomeGenerated).Inc()
		log.Info("scene written", zap.Int("prompt_chars", len(prompt)), zap.Int("words", report.Words), zap.Int("draft_version", draft.Version))
		err = e.emit(ctx, events.TypeSceneGenerated, "scene", entityID, events.EventPayload{
			"run_table": runTable, "draft_id": draft.DraftID, "version": draft.Version, "words": report.Words,
		})
	} else {
		report.Error = res.Err.Error()
		scenesTotal.WithLabelValues(outcomeFailed).Inc()
		log.Warn("scene generation failed", zap.Int("prompt_chars", len(prompt)), zap.Error(res.Err))
		err = e.emit(ctx, events.TypeSceneFailed, "scene", entityID, events.EventPayload{
			"run_table": runTable, "draft_id": draft.DraftID, "version": draft.Version, "error": report.Error,
		})
	}
	return report, err
}

func (e Engine) loadRunInputs(ctx context.Context, wc WriterConfig, only []domain.SceneKey) (runInputs, error) {
	var in runInputs
	var err error
	if in.meta, err = e.Repo.Metadata(ctx); err != nil {
		return in, fmt.Errorf("load metadata: %w", err)
	}
	if in.chars, err = e.Repo.ListCharacters(ctx); err != nil {
		return in, fmt.Errorf("load characters: %w", err)
	}
	if in.scenes, err = e.Repo.ListScenes(ctx); err != nil {
		return in, fmt.Errorf("load outline: %w", err)
	}
	if len(in.scenes) == 0 {
		return in, ErrNoScenes
	}
	if in.targets, err = selectScenes(in.scenes, only); err != nil {
		return in, err
	}
	if in.brainstorm, err = e.Repo.LatestVersionName(ctx, wc.BrainstormPrefix); err != nil {
		return in, fmt.Errorf("resolve brainstorm table: %w", err)
	}
	return in, nil
}

// selectScenes returns the outline rows named by only, in outline order.
func selectScenes(scenes []domain.SceneOutline, only []domain.SceneKey) ([]domain.SceneOutline, error) {
	if len(only) == 0 {
		return scenes, nil
	}
	byKey := make(map[domain.SceneKey]domain.SceneOutline, len(scenes))
	for _, s := range scenes {
		byKey[s.Key()] = s
	}
	seen := map[domain.SceneKey]bool{}
	var res []domain.SceneOutline
	var unknown []string
	for _, k := range only {
		s, ok := byKey[k]
		if !ok {
			unknown = append(unknown, k.String())
			continue
		}
		if !seen[k] {
			seen[k] = true
			res = append(res, s)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("scenes not in the outline: %s", strings.Join(unknown, "; "))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key().Less(res[j].Key()) })
	return res, nil
}

func (e Engine) missingCoverage(ctx context.Context, table string, targets []domain.SceneOutline) ([]domain.SceneKey, error) {
	counts := map[domain.SceneKey]map[string]int{}
	if table != "" {
		var err error
		if counts, err = e.Repo.BucketCounts(ctx, table); err != nil {
			return nil, fmt.Errorf("brainstorm coverage: %w", err)
		}
	}
	var missing []domain.SceneKey
	for _, s := range targets {
		if len(counts[s.Key()]) == 0 {
			missing = append(missing, s.Key())
		}
	}
	return missing, nil
}

// CoverageReport is the brainstorm coverage of the whole outline.
type CoverageReport struct {
	Table   string            `json:"table"`
	Scenes  []domain.Coverage `json:"scenes"`
	Missing []domain.SceneKey `json:"missing"`
}

func (e Engine) Coverage(ctx context.Context) (CoverageReport, error) {
	wc := e.writerConfig()
	var rep CoverageReport
	scenes, err := e.Repo.ListScenes(ctx)
	if err != nil {
		return rep, err
	}
	if rep.Table, err = e.Repo.LatestVersionName(ctx, wc.BrainstormPrefix); err != nil {
		return rep, err
	}
	counts := map[domain.SceneKey]map[string]int{}
	if rep.Table != "" {
		if counts, err = e.Repo.BucketCounts(ctx, rep.Table); err != nil {
			return rep, err
		}
	}
	rep.Missing = []domain.SceneKey{}
	for _, s := range scenes {
		c := domain.Coverage{Act: s.Act, Scene: s.Scene, Title: s.Title, Buckets: counts[s.Key()]}
		if c.Buckets == nil {
			c.Buckets = map[string]int{}
		}
		if !c.Covered() {
			rep.Missing = append(rep.Missing, s.Key())
		}
		rep.Scenes = append(rep.Scenes, c)
	}
	return rep, nil
}

// PromptPreview assembles the prompt a run would send for one scene without
// generating or writing anything.
func (e Engine) PromptPreview(ctx context.Context, key domain.SceneKey) (string, error) {
	wc := e.writerConfig()
	in, err := e.loadRunInputs(ctx, wc, []domain.SceneKey{key})
	if err != nil {
		return "", err
	}
	inputs, err := e.assemble(ctx, wc, in.meta, in.chars, in.scenes, in.targets[0], in.brainstorm)
	if err != nil {
		return "", err
	}
	return BuildPrompt(inputs, wc), nil
}
