package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/maauso/videogen/internal/job"
	"github.com/maauso/videogen/internal/provider"
)

// errJobsUnfinished is returned when a waited-for job did not complete.
var errJobsUnfinished = errors.New("one or more jobs did not complete")

// jobView is the printed form of a job.
type jobView struct {
	ID       string        `json:"id,omitempty"`
	Provider provider.Name `json:"provider"`
	Phase    job.Phase     `json:"phase"`
	Status   string        `json:"status,omitempty"`
	VideoURL string        `json:"videoUrl,omitempty"`
	Error    string        `json:"error,omitempty"`
	Prompt   string        `json:"prompt"`
}

func viewOf(j *job.Job) jobView {
	c := j.Clone()
	return jobView{
		ID:       c.ID,
		Provider: c.Provider,
		Phase:    c.Phase,
		Status:   c.Status,
		VideoURL: c.VideoURL,
		Error:    c.Error,
		Prompt:   c.Prompt(),
	}
}

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func providerFlag(fs *flag.FlagSet) *string {
	return fs.String("provider", string(provider.Veo3), "provider: veo3 or sora2")
}

// submitFlags are the flags shared by submit and batch.
type submitFlags struct {
	provider    *string
	model       *string
	aspect      *string
	orientation *string
	size        *string
	duration    *int
	enhance     *bool
	upsample    *bool
	image       *string
	token       *string
	wait        *bool
}

func addSubmitFlags(fs *flag.FlagSet) *submitFlags {
	return &submitFlags{
		provider:    providerFlag(fs),
		model:       fs.String("model", "", "model variant (default: first preferred model)"),
		aspect:      fs.String("aspect", "", "veo3 aspect ratio: 16:9 or 9:16"),
		orientation: fs.String("orientation", "", "sora2 orientation: portrait or landscape"),
		size:        fs.String("size", "", "sora2 size: small or large"),
		duration:    fs.Int("duration", 0, "sora2 duration in seconds"),
		enhance:     fs.Bool("enhance", true, "veo3 prompt enhancement"),
		upsample:    fs.Bool("upsample", false, "veo3 upsampling"),
		image:       fs.String("image", "", "first-frame image: a file path or URL"),
		token:       fs.String("token", "", "provider token (default: stored token)"),
		wait:        fs.Bool("wait", true, "poll until the job finishes"),
	}
}

// requests builds one request per prompt, preparing the shared first frame once.
func (a *app) requests(ctx context.Context, f *submitFlags, prompts []string) ([]job.Request, error) {
	name := provider.Name(*f.provider)
	if _, err := a.Registry.Get(name); err != nil {
		return nil, err
	}

	// An empty model lets the adapter apply its default.
	model := *f.model
	if model == "" {
		preferred, ok, err := a.Prefs.Preferred(name)
		if err != nil {
			return nil, err
		}
		if ok {
			model = preferred
		}
	}
	enhance, upsample := *f.enhance, *f.upsample
	settings := provider.Settings{
		Model:          model,
		AspectRatio:    *f.aspect,
		EnhancePrompt:  &enhance,
		EnableUpsample: &upsample,
		Orientation:    *f.orientation,
		Size:           *f.size,
		Duration:       *f.duration,
	}

	image, err := a.Preparer.Prepare(ctx, *f.image)
	if err != nil {
		return nil, err
	}

	reqs := make([]job.Request, 0, len(prompts))
	for _, p := range prompts {
		reqs = append(reqs, job.Request{
			Provider: name,
			Item:     provider.Item{Prompt: p, FirstFrameImage: image},
			Settings: settings,
			Token:    *f.token,
		})
	}
	return reqs, nil
}

// finish optionally waits for jobs and prints them.
func (a *app) finish(ctx context.Context, jobs []*job.Job, wait bool) error {
	views := make([]jobView, 0, len(jobs))
	unfinished := false
	for _, j := range jobs {
		if wait && !j.IsTerminal() {
			done, err := a.Controller.Wait(ctx, j.Provider, j.ID)
			switch {
			case errors.Is(err, context.Canceled):
				a.logger.Warn("polling interrupted; run refresh later",
					slog.String("job_id", j.ID),
				)
			case err != nil:
				return err
			default:
				j = done
			}
		}
		v := viewOf(j)
		if v.Phase == job.PhaseError || v.Phase == job.PhaseFailed || (wait && v.Phase != job.PhaseCompleted) {
			unfinished = true
		}
		views = append(views, v)
	}

	if err := a.printJSON(views); err != nil {
		return err
	}
	if unfinished {
		return errJobsUnfinished
	}
	return nil
}

func runSubmit(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "submit")
	f := addSubmitFlags(fs)
	prompt := fs.String("prompt", "", "generation prompt (or the first argument)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *prompt == "" {
		*prompt = strings.Join(fs.Args(), " ")
	}

	reqs, err := a.requests(ctx, f, []string{*prompt})
	if err != nil {
		return err
	}
	j, err := a.Controller.Submit(ctx, reqs[0])
	if err != nil {
		return err
	}
	return a.finish(ctx, []*job.Job{j}, *f.wait)
}

func runBatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "batch")
	f := addSubmitFlags(fs)
	file := fs.String("file", "-", "file with one prompt per line, - for stdin")
	if err := parse(fs, args); err != nil {
		return err
	}

	prompts, err := readPrompts(*file)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return job.ErrPromptRequired
	}

	reqs, err := a.requests(ctx, f, prompts)
	if err != nil {
		return err
	}
	jobs, err := a.Controller.SubmitAll(ctx, reqs)
	if err != nil {
		a.logger.Warn("some prompts were rejected", slog.String("error", err.Error()))
	}
	return a.finish(ctx, jobs, *f.wait)
}

// readPrompts returns the non-blank lines of path.
func readPrompts(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path) // #nosec G304 - path is chosen by the CLI user
		if err != nil {
			return nil, fmt.Errorf("open prompts: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var prompts []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	return prompts, nil
}

// historyOrder lists Veo3 entries before Sora2 entries.
var historyOrder = []provider.Name{provider.Veo3, provider.Sora2}

func runHistory(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "history")
	filter := fs.String("provider", "", "only this provider")
	clearAll := fs.Bool("clear", false, "delete the history of -provider")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *clearAll {
		name := provider.Name(*filter)
		if _, err := a.Registry.Get(name); err != nil {
			return err
		}
		return a.History.Clear(name)
	}
	return a.printJSON(a.History.Unified(historyOrder, provider.Name(*filter)))
}

func runQuery(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "query")
	name := providerFlag(fs)
	id := fs.String("id", "", "job id (or the first argument)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" && fs.NArg() > 0 {
		*id = fs.Arg(0)
	}

	d, err := a.Controller.Query(ctx, provider.Name(*name), *id)
	if err != nil {
		return err
	}
	return a.printJSON(d)
}

func runRefresh(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "refresh")
	name := providerFlag(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	entries, err := a.Controller.Refresh(ctx, provider.Name(*name))
	if err != nil {
		return err
	}
	return a.printJSON(entries)
}

func runToken(_ context.Context, a *app, args []string) error {
	if len(args) == 0 || (args[0] != "set" && args[0] != "clear") {
		fmt.Fprintln(a.stderr, "usage: vidgen token set|clear -provider <name> [token]")
		return errUsage
	}
	action := args[0]

	fs := newFlagSet(a, "token "+action)
	name := providerFlag(fs)
	if err := parse(fs, args[1:]); err != nil {
		return err
	}
	p := provider.Name(*name)
	if _, err := a.Registry.Get(p); err != nil {
		return err
	}

	if action == "clear" {
		return a.Controller.ClearToken(p)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "usage: vidgen token set -provider <name> <token>")
		return errUsage
	}
	return a.Controller.SaveToken(p, fs.Arg(0))
}

func runModels(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "models")
	name := providerFlag(fs)
	promote := fs.String("promote", "", "move this model to the front")
	if err := parse(fs, args); err != nil {
		return err
	}

	p := provider.Name(*name)
	var (
		order []string
		err   error
	)
	if *promote != "" {
		order, err = a.Prefs.Promote(p, *promote)
	} else {
		order, err = a.Prefs.ModelOrder(p)
	}
	if err != nil {
		return err
	}
	return a.printJSON(order)
}
