package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/ingest"
	"slippi-tracker/internal/melee"
)

type parseRun struct {
	id        int
	cancel    context.CancelFunc
	total     int
	parsed    int
	failed    int
	folders   []ingest.Folder
	audit     *domain.IngestRun
	cancelled bool
}

type completionMsg struct {
	parseID int
	c       ingest.Completion
}

type parseDoneMsg struct {
	parseID int
	applied int
	err     error
}

// startParse ingests every replay under root that changed since the last
// scan and is not stored yet.
func (t *Tracker) startParse(root string) {
	t.seq.Reset()
	t.rivals.Reset()
	m := t.meta.Get()
	t.emitter.Emit(domain.EventMeta, m)

	scan, err := ingest.Scan(root, t.opts.RecursivelyAllPaths, m.FolderTimestamps)
	if err != nil {
		t.logger.Error().Err(err).Str("root", root).Msg("failed to scan replay folder")
		t.emitter.Emit(domain.EventParseStart, 0)
		t.emitter.Emit(domain.EventParseFinish, 0)
		return
	}
	for _, dup := range scan.Duplicates {
		t.logger.Warn().Str("file", dup).Msg("skipping replay with a duplicate name")
	}
	files, err := t.results.FilesNotExist(t.ctx, scan.Files)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to check stored replays")
		t.emitter.Emit(domain.EventParseStart, 0)
		t.emitter.Emit(domain.EventParseFinish, 0)
		return
	}
	files = uniqueBase(files)

	t.emitter.Emit(domain.EventParseStart, len(files))
	t.logger.Info().Str("root", root).Int("files", len(files)).Int("folders", len(scan.Folders)).Msg("parsing replays")
	if len(files) == 0 {
		t.emitter.Emit(domain.EventParseFinish, 0)
		return
	}

	ctx, cancel := context.WithCancel(t.ctx)
	t.parseSeq++
	run := &parseRun{id: t.parseSeq, cancel: cancel, total: len(files), folders: scan.Folders}
	if audit, err := t.runs.Start(t.ctx, root, len(files), time.Now().UnixMilli()); err != nil {
		t.logger.Warn().Err(err).Msg("failed to record ingest run")
	} else {
		run.audit = audit
	}
	t.parse = run

	opts := ingest.Options{Parallel: t.opts.ProcessParallel, Workers: t.opts.UseCPUs}
	id := run.id
	go func() {
		applied, err := t.engine.Run(ctx, files, opts, func(c ingest.Completion) {
			select {
			case t.completions <- completionMsg{parseID: id, c: c}:
			case <-t.stop:
			}
		})
		select {
		case t.parseDone <- parseDoneMsg{parseID: id, applied: applied, err: err}:
		case <-t.stop:
		}
	}()
}

func (t *Tracker) onCompletion(msg completionMsg) {
	run := t.parse
	if run == nil || msg.parseID != run.id {
		return
	}
	c := msg.c
	t.seq.Deliver(c.Index, c.Result)

	if c.Err != nil {
		run.failed++
		var data any
		if c.Decoded != nil {
			data = c.Decoded
		}
		t.results.PersistInvalid(t.ctx, c.Path, c.Err, data)
	} else if _, err := t.results.Persist(t.ctx, c.Result, c.Stats, t.opts.CurrentCodes); err != nil {
		run.failed++
		t.logger.Error().Err(err).Str("file", c.Path).Msg("failed to persist replay")
	}
	run.parsed++
	t.emitter.Emit(domain.EventParsedFile, run.parsed)
}

func (t *Tracker) onParseDone(msg parseDoneMsg) {
	run := t.parse
	if run == nil || msg.parseID != run.id {
		return
	}
	cancelled := run.cancelled || errors.Is(msg.err, context.Canceled)
	t.seq.Reset()
	t.emitter.Emit(domain.EventParseFinish, run.total)
	t.logger.Info().Int("parsed", run.parsed).Int("failed", run.failed).Bool("cancelled", cancelled).Msg("parse finished")

	if !cancelled {
		now := time.Now().UnixMilli()
		err := t.meta.Update(func(m *domain.Meta) {
			if m.FolderTimestamps == nil {
				m.FolderTimestamps = map[string]int64{}
			}
			for _, f := range run.folders {
				m.FolderTimestamps[f.Path] = now
			}
		})
		if err != nil {
			t.logger.Warn().Err(err).Msg("failed to store folder timestamps")
		}
	}
	t.finishRun(run, cancelled)
	t.parse = nil
	// A game that started during the parse keeps parsing set until it ends.
	if t.game != nil {
		t.holdParsing = true
	}
}

// detachParse cancels the running parse and forgets it; its remaining
// completions are ignored.
func (t *Tracker) detachParse() {
	run := t.parse
	run.cancel()
	t.finishRun(run, true)
	t.parse = nil
	t.seq.Reset()
}

func (t *Tracker) finishRun(run *parseRun, cancelled bool) {
	if run.audit == nil {
		return
	}
	now := time.Now().UnixMilli()
	run.audit.FinishedAt = &now
	run.audit.Parsed = run.parsed
	run.audit.Failed = run.failed
	run.audit.Cancelled = cancelled
	if err := t.runs.Finish(t.ctx, run.audit); err != nil {
		t.logger.Warn().Err(err).Str("run", run.audit.ID).Msg("failed to finish ingest run")
	}
}

// onPair checks two consecutive games for the viewer's code.
func (t *Tracker) onPair(prev, cur *domain.GameResults) {
	if det, ok := t.rivals.Observe(ingest.PairOf(prev), ingest.PairOf(cur)); ok {
		t.addDetectedCode(det.Code, det.UserID)
	}
}

// addDetectedCode records a code found to be the viewer's and starts
// treating it as one of the current codes.
func (t *Tracker) addDetectedCode(code, userID string) {
	if _, ok := t.detected[code]; !ok {
		t.detected[code] = userID
		err := t.meta.Update(func(m *domain.Meta) {
			if m.DetectedUserCodes == nil {
				m.DetectedUserCodes = map[string]string{}
			}
			m.DetectedUserCodes[code] = userID
			m.LastUsedCode = code
			m.LastUsedUserID = userID
		})
		if err != nil {
			t.logger.Warn().Err(err).Str("code", code).Msg("failed to store detected code")
		}
		t.logger.Info().Str("code", code).Msg("detected your code")
	}
	if !melee.ContainsFold(t.opts.CurrentCodes, code) {
		t.opts.CurrentCodes = append(t.opts.CurrentCodes, code)
		t.publish()
	}
}

// uniqueBase keeps the first file of every base name.
func uniqueBase(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := files[:0]
	for _, f := range files {
		base := filepath.Base(f)
		if seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, f)
	}
	return out
}
