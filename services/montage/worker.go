// Package montagesvc builds montage archives in the background.
package montagesvc

import (
	"context"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/montage"
	"github.com/parlemonde/clap-sub002/core/project"
)

const archiveName = "Montage.zip"

var ErrQueueFull = errors.New("too many montages are being built, try again later")

type task struct {
	job    montage.Job
	prj    project.Project
	notify string
}

// Worker is a bounded pool of montage builders.
type Worker struct {
	jobs    montage.JobStore
	src     montage.Source
	mailSvc core.EmailService
	logger  core.Logger
	dir     string
	ttl     time.Duration
	hostURL string
	nowFunc func() time.Time

	queue  chan task
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
	sweep  sync.WaitGroup
}

// NewWorker starts conf.Montage.Workers builders writing archives below <media dir>/zip.
func NewWorker(conf *core.Config, jobs montage.JobStore, src montage.Source, mailSvc core.EmailService, logger core.Logger) *Worker {
	workers := max(1, conf.Montage.Workers)
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		jobs:    jobs,
		src:     src,
		mailSvc: mailSvc,
		logger:  logger,
		dir:     filepath.Join(conf.Media.Dir, "zip"),
		ttl:     conf.Montage.JobTTL,
		hostURL: strings.TrimRight(conf.Media.HostURL, "/"),
		nowFunc: func() time.Time { return time.Now().UTC() },
		queue:   make(chan task, max(0, conf.Montage.QueueSize)),
		cancel:  cancel,
	}
	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.run(ctx)
	}
	if w.ttl > 0 {
		w.sweep.Add(1)
		go w.purgeLoop(ctx, min(w.ttl, time.Hour))
	}
	return w
}

// JobURL is where the archive of a succeeded job is downloaded from.
func JobURL(id string) string {
	return "/v1/montages/" + id + "/" + archiveName
}

// Submit queues an archive build of prj. When notify is set, a mail is sent
// to it once the archive is ready.
func (w *Worker) Submit(ctx context.Context, prj project.Project, notify string) (montage.Job, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return montage.Job{}, core.NewShutdownError("montage worker stopped")
	}

	now := w.nowFunc()
	job := montage.Job{
		ID:        uuid.New().String(),
		ProjectID: prj.ID,
		State:     montage.JobWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.jobs.SaveJob(ctx, job); err != nil {
		return montage.Job{}, errors.Wrap(err, "saving montage job")
	}
	select {
	case w.queue <- task{job: job, prj: prj, notify: notify}:
		return job, nil
	default:
		w.fail(ctx, job, ErrQueueFull)
		return montage.Job{}, ErrQueueFull
	}
}

// Job returns the state of a job.
func (w *Worker) Job(ctx context.Context, id string) (montage.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return montage.Job{}, montage.ErrJobNotFound
	}
	return w.jobs.GetJob(ctx, id)
}

// ArchivePath returns the archive file of a job.
func (w *Worker) ArchivePath(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", montage.ErrJobNotFound
	}
	return filepath.Join(w.dir, id, archiveName), nil
}

// Close stops accepting jobs, builds the queued ones and waits for the builders.
// When ctx ends first, running builds are canceled.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.cancel()
		w.sweep.Wait()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		w.sweep.Wait()
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for t := range w.queue {
		w.build(ctx, t)
	}
}

func (w *Worker) purgeLoop(ctx context.Context, every time.Duration) {
	defer w.sweep.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		w.purge()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// purge removes the archives of jobs whose record has expired.
func (w *Worker) purge() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Error("montage: listing archives", err)
		}
		return
	}
	expired := w.nowFunc().Add(-w.ttl)
	for _, e := range entries {
		if _, err := uuid.Parse(e.Name()); err != nil || !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(expired) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.dir, e.Name())); err != nil {
			w.logger.Error("montage: removing archive "+e.Name(), err)
		}
	}
}

func (w *Worker) save(ctx context.Context, job montage.Job) {
	job.UpdatedAt = w.nowFunc()
	if err := w.jobs.SaveJob(ctx, job); err != nil {
		w.logger.Error("montage: saving job "+job.ID, err)
	}
}

func (w *Worker) fail(ctx context.Context, job montage.Job, err error) {
	job.State = montage.JobFailed
	job.Error = err.Error()
	w.save(ctx, job)
}

func (w *Worker) build(ctx context.Context, t task) {
	job := t.job
	job.State = montage.JobProcessing
	w.save(ctx, job)

	if err := w.writeArchive(ctx, job.ID, t.prj); err != nil {
		w.logger.Error(fmt.Sprintf("montage: building project %d", t.prj.ID), err)
		// the job outlives a canceled build
		w.fail(context.WithoutCancel(ctx), job, err)
		return
	}

	job.State = montage.JobSucceeded
	job.URL = JobURL(job.ID)
	w.save(ctx, job)

	if t.notify != "" {
		w.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Address: t.notify}},
			Subject:      "Montage ready: " + t.prj.Name,
			TemplateName: "montage_ready",
			TemplateData: map[string]interface{}{
				"ProjectName": t.prj.Name,
				"DownloadURL": w.hostURL + job.URL,
			},
		})
	}
}

func (w *Worker) writeArchive(ctx context.Context, id string, prj project.Project) (err error) {
	dir := filepath.Join(w.dir, id)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating archive directory")
	}
	tmp, err := os.CreateTemp(dir, archiveName+".*")
	if err != nil {
		return errors.Wrap(err, "creating archive")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = montage.Archive(ctx, tmp, prj, w.src, w.logger); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing archive")
	}
	return errors.Wrap(os.Rename(tmp.Name(), filepath.Join(dir, archiveName)), "saving archive")
}
