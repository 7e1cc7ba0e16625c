package cli

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/CardSorting/MarieCoder-sub006/internal/config"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
	"github.com/CardSorting/MarieCoder-sub006/internal/metrics"
	"github.com/CardSorting/MarieCoder-sub006/internal/notify"
	"github.com/CardSorting/MarieCoder-sub006/internal/session"
	"github.com/CardSorting/MarieCoder-sub006/internal/signal"
	"github.com/CardSorting/MarieCoder-sub006/internal/workspace"
)

// teardownGrace pads the configured cancel wait so teardown after an
// interrupt runs on a context that outlives the cooperative wait itself.
const teardownGrace = time.Second

// AddTaskCommand registers the task command group.
func AddTaskCommand(root *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Start and resume coding tasks",
	}

	cmd.AddCommand(newTaskRunCmd(flags))
	cmd.AddCommand(newTaskResumeCmd(flags))

	root.AddCommand(cmd)
}

// newTaskRunCmd starts a fresh task and hosts it until interrupted.
func newTaskRunCmd(flags *GlobalFlags) *cobra.Command {
	var images, files []string

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Start a new task and host it until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prompt string
			if len(args) > 0 {
				prompt = args[0]
			}
			if prompt == "" && len(images) == 0 && len(files) == 0 {
				return mcerrors.Wrap(mcerrors.ErrEmptyValue, "a prompt, image, or file is required")
			}

			return hostTaskSession(cmd, flags, func(ctx context.Context, ctrl *session.Controller) (string, error) {
				return ctrl.CreateTask(ctx, session.CreateParams{
					Prompt: prompt,
					Images: images,
					Files:  files,
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&images, "image", nil, "image path to attach (repeatable)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "file path to attach (repeatable)")
	return cmd
}

// newTaskResumeCmd resumes a task from history and hosts it until interrupted.
func newTaskResumeCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Resume a task from history and host it until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return hostTaskSession(cmd, flags, func(ctx context.Context, ctrl *session.Controller) (string, error) {
				if err := ctrl.ReinitTask(ctx, args[0]); err != nil {
					return "", err
				}
				id, _ := ctrl.CurrentTaskID()
				return id, nil
			})
		},
	}
}

// hostTaskSession builds a full session core, runs start to obtain the live
// task, and hosts it until the user interrupts. Interrupt tears the task down
// cooperatively before exit.
func hostTaskSession(cmd *cobra.Command, flags *GlobalFlags, start func(context.Context, *session.Controller) (string, error)) error {
	logger := GetLogger()

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}

	h := signal.NewHandler(cmd.Context())
	defer h.Stop()
	ctx := h.Context()

	ctrl, err := newControllerFromConfig(cfg, flags, logger)
	if err != nil {
		return err
	}
	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}

	taskID, err := start(ctx, ctrl)
	if err != nil {
		return err
	}

	cmd.Printf("Task %s running in %s, press Ctrl+C to stop\n", taskID, ctrl.GetCwd())

	select {
	case <-h.Interrupted():
	case <-ctx.Done():
	}

	// The interrupt cancelled the session context; teardown runs on its own
	// deadline so the cooperative cancel wait still gets its full window.
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Task.CancelWaitTimeout+teardownGrace)
	defer cancel()

	if err := ctrl.ClearCurrentTask(stopCtx); err != nil {
		return mcerrors.Wrap(err, "failed to stop task")
	}

	cmd.Printf("Task %s stopped\n", taskID)
	return nil
}

// newControllerFromConfig assembles the session core the CLI commands run on.
func newControllerFromConfig(cfg *config.Config, flags *GlobalFlags, logger zerolog.Logger) (*session.Controller, error) {
	store, err := newStore()
	if err != nil {
		return nil, err
	}

	sink := notify.NewTerminalSink(notify.Config{
		BellEnabled: cfg.Notifications.Bell,
		Quiet:       cfg.Notifications.Quiet || flags.Quiet,
	}, logger)

	return session.NewController(session.Deps{
		Factory:             &hostFactory{logger: logger},
		Pusher:              &loggingPusher{logger: logger},
		Store:               store,
		Detector:            workspace.NewConfigDetector(cfg.Workspace.Roots, logger),
		Notifier:            sink,
		Metrics:             metrics.NewPromRecorder(prometheus.NewRegistry()),
		Logger:              logger,
		MarketplaceEndpoint: cfg.Marketplace.Endpoint,
		CatalogTimeout:      cfg.Marketplace.RequestTimeout,
		FallbackCwd:         cfg.Workspace.FallbackCwd,
		CancelWaitTimeout:   cfg.Task.CancelWaitTimeout,
	})
}

// hostFactory builds tasks for the CLI host. The CLI carries no streaming
// engine; its tasks sit idle until cancelled, so commands operate the
// surrounding session (history, state, workspace) end to end.
type hostFactory struct {
	logger zerolog.Logger
}

func (f *hostFactory) NewTask(_ context.Context, spec session.TaskSpec) (session.Task, error) {
	f.logger.Info().
		Str("task_id", spec.TaskID).
		Str("cwd", spec.Cwd).
		Bool("resumed", spec.HistoryItem != nil).
		Msg("task hosted")

	return &hostTask{id: spec.TaskID}, nil
}

// hostTask is the idle task instance produced by hostFactory.
type hostTask struct {
	id    string
	state session.TaskState
}

func (t *hostTask) ID() string { return t.id }

func (t *hostTask) State() *session.TaskState { return &t.state }

// Abort finishes immediately; an idle task has no stream to unwind.
func (t *hostTask) Abort(_ context.Context) error {
	t.state.AbortStreamDone.Store(true)
	return nil
}

// loggingPusher records state pushes in the log. The CLI has no webview to
// post snapshots to.
type loggingPusher struct {
	logger zerolog.Logger
}

func (p *loggingPusher) PostState(_ context.Context) error {
	p.logger.Debug().Msg("state pushed")
	return nil
}
