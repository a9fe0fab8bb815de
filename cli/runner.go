// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, storage and scheduler setup hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/zhfg/refly-sub011/config"
	"github.com/zhfg/refly-sub011/internal/logging"
	"github.com/zhfg/refly-sub011/model"
	"github.com/zhfg/refly-sub011/scheduler"
	"github.com/zhfg/refly-sub011/server"
	"github.com/zhfg/refly-sub011/storage"
)

// Options holds CLI execution options.
type Options struct {
	Provider string
	Verbose  bool
}

// RunOptions configures a single turn.
type RunOptions struct {
	ProjectID    string
	DocumentPath string
	Selection    string
	Skill        string
	JSON         bool
}

// ErrTurnFailed is returned when a turn ends with a non-ok status.
var ErrTurnFailed = errors.New("turn did not complete")

func loadSettings(opts Options) (config.Settings, error) {
	provider := opts.Provider
	if provider == "" {
		provider = os.Getenv("LLM_PROVIDER")
	}
	if provider == "" {
		provider = "openai"
	}
	settings, err := config.New(provider)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.Verbose {
		settings.LogLevel = "debug"
	}
	return settings, nil
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, addr string, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = settings.Server.Addr
	}
	logger := logging.NewLogger(settings.LogLevel)

	filter, err := config.LoadFilterConfig(settings.Scheduler.FilterPath)
	if err != nil {
		return err
	}

	store, err := storage.OpenSqlite(settings.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	sched, err := BuildScheduler(settings, store, logger)
	if err != nil {
		return err
	}
	return server.New(sched, store, filter, logger).Run(ctx, addr)
}

// Run executes one turn and prints its events to out.
func Run(ctx context.Context, query string, runOpts RunOptions, opts Options, out io.Writer) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	logger := logging.NewTextLogger(settings.LogLevel, os.Stderr)

	filter, err := config.LoadFilterConfig(settings.Scheduler.FilterPath)
	if err != nil {
		return err
	}

	req := scheduler.Request{
		Query:     model.Query{Text: query},
		Filter:    filter,
		ProjectID: runOpts.ProjectID,
		Skill:     runOpts.Skill,
	}
	if runOpts.DocumentPath != "" {
		doc, err := loadDocument(runOpts.DocumentPath)
		if err != nil {
			return err
		}
		req.CurrentDocument = &doc
		if runOpts.Selection != "" {
			edit, err := selectText(doc, runOpts.Selection)
			if err != nil {
				return err
			}
			req.EditConfig = &edit
		}
	} else if runOpts.Selection != "" {
		return errors.New("--selection requires --document")
	}

	sched, err := BuildScheduler(settings, nil, logger)
	if err != nil {
		return err
	}
	return printEvents(out, sched.Run(ctx, req), runOpts.JSON)
}

// ListSkills prints the skill table.
func ListSkills(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SKILL\tTOOLS")
	for _, info := range scheduler.Skills() {
		fmt.Fprintf(w, "%s\t%s\n", info.Name, strings.Join(info.Tools, ", "))
	}
	w.Flush()
}

// loadDocument reads a markdown file as the current document. The title is
// the first H1 heading, or the file name.
func loadDocument(path string) (model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Document{}, fmt.Errorf("read document: %w", err)
	}
	content := string(data)
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, line := range strings.Split(content, "\n") {
		if heading, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			title = strings.TrimSpace(heading)
			break
		}
	}
	return model.Document{ID: filepath.Base(path), Title: title, Content: content}, nil
}

// selectText locates the first occurrence of selection in doc. Indexes are
// rune offsets.
func selectText(doc model.Document, selection string) (model.EditConfig, error) {
	idx := strings.Index(doc.Content, selection)
	if idx < 0 {
		return model.EditConfig{}, fmt.Errorf("selection not found in %s", doc.ID)
	}
	start := len([]rune(doc.Content[:idx]))
	return model.EditConfig{
		SelectedText: selection,
		StartIndex:   start,
		EndIndex:     start + len([]rune(selection)),
	}, nil
}

// printEvents drains stream. JSON mode prints one event per line; text
// mode prints the answer with logs and structured data around it.
func printEvents(out io.Writer, stream <-chan model.SkillEvent, jsonMode bool) error {
	var (
		rootSpan  string
		final     model.SkillEvent
		streaming bool
	)
	enc := json.NewEncoder(out)

	for ev := range stream {
		if rootSpan == "" {
			rootSpan = ev.SpanID
		}
		if ev.Event == model.EventEnd && ev.SpanID == rootSpan {
			final = ev
		}
		if jsonMode {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}

		if streaming && ev.Event != model.EventStream {
			fmt.Fprintln(out)
			streaming = false
		}
		switch ev.Event {
		case model.EventStream:
			fmt.Fprint(out, ev.Content)
			streaming = true
		case model.EventLog:
			fmt.Fprintf(out, "[%s] %s\n", ev.SkillMeta.Name, ev.Content)
		case model.EventStructuredData:
			printStructured(out, ev)
		case model.EventEnd:
			if ev.Status == model.StatusFailed && ev.SpanID != rootSpan {
				fmt.Fprintf(out, "[%s] failed: %s\n", ev.SkillMeta.Name, ev.Error)
			}
		}
	}

	if final.Status != model.StatusOK {
		if final.Error != "" {
			return fmt.Errorf("%w: %s: %s", ErrTurnFailed, final.Status, final.Error)
		}
		return fmt.Errorf("%w: %s", ErrTurnFailed, final.Status)
	}
	return nil
}

func printStructured(out io.Writer, ev model.SkillEvent) {
	switch ev.StructuredDataKey {
	case model.KeySources:
		var sources []model.Source
		if json.Unmarshal([]byte(ev.Content), &sources) == nil {
			fmt.Fprintln(out, "\nSources:")
			for i, s := range sources {
				fmt.Fprintf(out, "  [%d] %s - %s\n", i+1, s.Title, s.URL)
			}
			return
		}
	case model.KeyRelatedQuestions:
		var questions []string
		if json.Unmarshal([]byte(ev.Content), &questions) == nil {
			fmt.Fprintln(out, "\nRelated questions:")
			for _, q := range questions {
				fmt.Fprintf(out, "  - %s\n", q)
			}
			return
		}
	case model.KeyTokenUsage:
		var usage []model.TokenUsageItem
		if json.Unmarshal([]byte(ev.Content), &usage) == nil {
			fmt.Fprintln(out, "\nToken usage:")
			for _, u := range usage {
				fmt.Fprintf(out, "  %s %s/%s: %d in, %d out\n", u.Tier, u.ModelProvider, u.ModelName, u.InputTokens, u.OutputTokens)
			}
			return
		}
	case model.KeyFilterErrorInfo:
		var info model.FilterErrorInfo
		if json.Unmarshal([]byte(ev.Content), &info) == nil {
			fmt.Fprintln(out, "Context rejected:")
			for _, typ := range model.ContextItemTypes {
				if e, ok := info[typ]; ok {
					if e.Required && e.CurrentCount == 0 {
						fmt.Fprintf(out, "  %s: at least one required\n", typ)
					} else {
						fmt.Fprintf(out, "  %s: %d items, limit %d\n", typ, e.CurrentCount, e.Limit)
					}
				}
			}
			return
		}
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", ev.SkillMeta.Name, ev.StructuredDataKey, ev.Content)
}
