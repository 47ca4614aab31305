package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nao1215/webmirror/internal/model"
)

// recordingStep is a test step that records whether it ran and can be
// made to fail.
type recordingStep struct {
	name string
	err  error
	ran  bool
}

func (s *recordingStep) Do(_ context.Context, _ *model.MirrorReport) error {
	s.ran = true
	return s.err
}

func (s *recordingStep) Name() string { return s.name }

// abortiveRecordingStep is a recordingStep whose failure ends the run.
type abortiveRecordingStep struct {
	recordingStep
}

func (s *abortiveRecordingStep) Abortive() bool { return true }

// stepNames lists a pipeline's step names in execution order.
func stepNames(p *Pipeline) []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPipelineExecute tests sequential execution, error propagation, and
// the continue-on-error policy.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs steps in order and records them", func(t *testing.T) {
		t.Parallel()

		first := &recordingStep{name: "first"}
		second := &recordingStep{name: "second"}

		p := New(WithLogger(discardLogger()))
		p.Add(first, second)

		rep := model.NewMirrorReport("https://example.com", "mirror")
		if err := p.Execute(context.Background(), rep); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !first.ran || !second.ran {
			t.Error("expected both steps to run")
		}
		if len(rep.PerformedSteps) != 2 || rep.PerformedSteps[0] != "first" || rep.PerformedSteps[1] != "second" {
			t.Errorf("unexpected performed steps %v", rep.PerformedSteps)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		failing := &recordingStep{name: "failing", err: boom}
		after := &recordingStep{name: "after"}

		p := New(WithLogger(discardLogger()))
		p.Add(failing, after)

		rep := model.NewMirrorReport("https://example.com", "mirror")
		if err := p.Execute(context.Background(), rep); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if after.ran {
			t.Error("expected later step to be skipped")
		}
		if rep.Error != "boom" {
			t.Errorf("expected error recorded in report, got %q", rep.Error)
		}
	})

	t.Run("continue-on-error runs every step", func(t *testing.T) {
		t.Parallel()

		failing := &recordingStep{name: "failing", err: errors.New("boom")}
		after := &recordingStep{name: "after"}

		p := New(WithLogger(discardLogger()), WithContinueOnError(true))
		p.Add(failing, after)

		rep := model.NewMirrorReport("https://example.com", "mirror")
		if err := p.Execute(context.Background(), rep); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if !after.ran {
			t.Error("expected later step to run")
		}
		if rep.Error != "boom" {
			t.Errorf("expected error recorded in report, got %q", rep.Error)
		}
		if len(rep.PerformedSteps) != 2 {
			t.Errorf("expected both steps recorded, got %v", rep.PerformedSteps)
		}
	})

	t.Run("cancelled context stops before the next step", func(t *testing.T) {
		t.Parallel()

		step := &recordingStep{name: "never"}
		p := New(WithLogger(discardLogger()))
		p.Add(step)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		rep := model.NewMirrorReport("https://example.com", "mirror")
		if err := p.Execute(ctx, rep); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if step.ran {
			t.Error("expected step to be skipped after cancellation")
		}
	})

	t.Run("an abortive step's failure ends a tolerant run", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		failing := &abortiveRecordingStep{recordingStep{name: "failing", err: boom}}
		after := &recordingStep{name: "after"}

		p := New(WithLogger(discardLogger()), WithContinueOnError(true))
		p.Add(failing, after)

		rep := model.NewMirrorReport("https://example.com", "mirror")
		if err := p.Execute(context.Background(), rep); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if after.ran {
			t.Error("expected later step to be skipped")
		}
		if rep.Error != "boom" {
			t.Errorf("expected error recorded in report, got %q", rep.Error)
		}
	})
}

// TestDefaultPipeline tests step membership derived from the
// configuration.
func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	t.Run("minimal config gets mirror, tree, and history", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t)
		p := DefaultPipeline(cfg, []Option{WithLogger(discardLogger())})

		names := stepNames(p)
		want := []string{"mirror", "tree", "history"}
		if len(names) != len(want) {
			t.Fatalf("expected %v, got %v", want, names)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("expected step %q at %d, got %q", want[i], i, names[i])
			}
		}
	})

	t.Run("archive and database toggles add their steps", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t)
		cfg.Archive = true
		cfg.SaveToDB = true
		cfg.DBDir = t.TempDir()

		p := DefaultPipeline(cfg, []Option{WithLogger(discardLogger())})

		names := stepNames(p)
		want := []string{"mirror", "tree", "archive", "history", "database"}
		if len(names) != len(want) {
			t.Fatalf("expected %v, got %v", want, names)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("expected step %q at %d, got %q", want[i], i, names[i])
			}
		}
	})
}
