package publish

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/history"
	"github.com/ethpandaops/resultoor/pkg/result"
	"github.com/ethpandaops/resultoor/pkg/s3client"
)

const (
	// DefaultRunsPrefix is the key prefix of run files below the site prefix.
	DefaultRunsPrefix = "runs"

	writeTestKey      = ".resultoor-write-test"
	uploadConcurrency = 8
)

// Request describes what to publish.
type Request struct {
	// SiteDir is the local site root.
	SiteDir string

	// Document is the report path relative to SiteDir.
	Document string

	// RunsDir is the local run-file directory to upload. Empty skips the
	// run sync, as table mode does.
	RunsDir string

	// Pruned maps run files the cycle removed locally to the run ID they
	// held. A remote copy is deleted only while it still holds that run.
	Pruned map[string]string

	// ExpireBefore deletes remote run files whose filename timestamp is
	// older. Zero disables expiry.
	ExpireBefore time.Time
}

// Result reports what a publish changed remotely.
type Result struct {
	DocumentKey string
	Uploaded    []string
	Deleted     []string
	Collisions  []result.WriteCollision
}

// Publisher uploads a rendered site to remote storage.
type Publisher interface {
	// Preflight verifies that the remote storage is reachable and writable.
	Preflight(ctx context.Context) error

	// Publish uploads the document and, if requested, syncs run files.
	// Remote run files are never overwritten.
	Publish(ctx context.Context, req Request) (*Result, error)
}

// s3Publisher implements Publisher for S3-compatible storage.
type s3Publisher struct {
	log    logrus.FieldLogger
	cfg    *config.S3Config
	client *s3.Client
	runs   history.Store
}

// Ensure interface compliance.
var _ Publisher = (*s3Publisher)(nil)

// NewS3Publisher creates a new S3 publisher from the given configuration.
func NewS3Publisher(log logrus.FieldLogger, cfg *config.S3Config) Publisher {
	runsCfg := *cfg
	runsCfg.Prefix = s3client.JoinKey(cfg.Prefix, DefaultRunsPrefix)

	return &s3Publisher{
		log:    log.WithField("component", "s3-publisher"),
		cfg:    cfg,
		client: s3client.New(cfg),
		runs:   history.NewS3Store(log, &runsCfg),
	}
}

// Preflight verifies S3 connectivity by writing and removing a small test
// object.
func (p *s3Publisher) Preflight(ctx context.Context) error {
	key := p.resolveKey(writeTestKey)
	content := fmt.Sprintf("resultoor write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", p.cfg.Bucket, err)
	}

	if _, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		p.log.WithError(err).Warn("Failed to remove write test object")
	}

	return nil
}

func (p *s3Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	res := &Result{DocumentKey: p.resolveKey(filepath.ToSlash(req.Document))}

	if err := p.uploadFile(ctx, filepath.Join(req.SiteDir, filepath.FromSlash(req.Document)), res.DocumentKey); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", req.Document, err)
	}

	p.log.WithFields(logrus.Fields{
		"bucket": p.cfg.Bucket,
		"key":    res.DocumentKey,
	}).Info("Published report")

	if req.RunsDir == "" {
		return res, nil
	}

	if err := p.syncRuns(ctx, req, res); err != nil {
		return nil, err
	}

	return res, nil
}

// placement is where a local run file ended up remotely.
type placement struct {
	name     string
	runID    string
	uploaded bool
}

// syncRuns uploads local run files that are not published yet and removes
// remote copies of pruned or expired runs. A remote name that holds another
// run is left untouched and the local run moves to the next free suffix.
func (p *s3Publisher) syncRuns(ctx context.Context, req Request, res *Result) error {
	entries, err := os.ReadDir(req.RunsDir)
	if err != nil {
		if os.IsNotExist(err) {
			p.log.WithField("dir", req.RunsDir).Warn("Runs directory not found, skipping run sync")

			return nil
		}

		return fmt.Errorf("reading runs directory %s: %w", req.RunsDir, err)
	}

	listed, err := p.runs.List(ctx)
	if err != nil {
		return fmt.Errorf("listing remote run files: %w", err)
	}

	remote := make(map[string]struct{}, len(listed))

	for _, name := range listed {
		if history.IsRunFile(name) {
			remote[name] = struct{}{}
		}
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)

	for _, e := range entries {
		if !e.Type().IsRegular() || !history.IsRunFile(e.Name()) {
			continue
		}

		name := e.Name()

		g.Go(func() error {
			placed, err := p.uploadRun(gctx, filepath.Join(req.RunsDir, name), name, remote)
			if err != nil || placed == nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			if placed.uploaded {
				res.Uploaded = append(res.Uploaded, placed.name)
			}

			if placed.name != name {
				collision := result.WriteCollision{RunID: placed.runID, Preferred: name, Actual: placed.name}
				res.Collisions = append(res.Collisions, collision)

				p.log.WithField("collision", collision.String()).Warn("Remote run file name taken by another run")
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("uploading run files: %w", err)
	}

	doomed, err := p.remoteDeletions(ctx, req, remote)
	if err != nil {
		return err
	}

	for _, name := range doomed {
		if err := p.runs.Delete(ctx, name); err != nil {
			return fmt.Errorf("deleting remote run file: %w", err)
		}

		res.Deleted = append(res.Deleted, name)
	}

	sort.Strings(res.Uploaded)
	sort.Slice(res.Collisions, func(i, j int) bool {
		return res.Collisions[i].Preferred < res.Collisions[j].Preferred
	})

	p.log.WithFields(logrus.Fields{
		"location":   p.runs.Location(),
		"uploaded":   len(res.Uploaded),
		"deleted":    len(res.Deleted),
		"collisions": len(res.Collisions),
	}).Info("Run files synced")

	return nil
}

// uploadRun stores one local run file under its own name or, when that name
// holds a different run, under the next free suffix. A name already holding
// the same run counts as published. Unreadable local files are skipped.
func (p *s3Publisher) uploadRun(
	ctx context.Context,
	localPath, name string,
	remote map[string]struct{},
) (*placement, error) {
	data, err := os.ReadFile(localPath) //nolint:gosec // path built from configured runs dir
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	run, err := history.Decode(data)
	if err != nil {
		p.log.WithError(err).WithField("file", name).Warn("Skipping unreadable local run file")

		return nil, nil
	}

	ts, seq, _ := history.ParseFileName(name)

	for ; seq <= history.MaxSequence; seq++ {
		candidate := history.FileName(ts, seq)

		if _, taken := remote[candidate]; !taken {
			err := p.runs.Create(ctx, candidate, data)
			if err == nil {
				return &placement{name: candidate, runID: run.ID, uploaded: true}, nil
			}

			if !errors.Is(err, history.ErrExists) {
				return nil, fmt.Errorf("uploading %s: %w", candidate, err)
			}
		}

		same, err := p.holdsRun(ctx, candidate, run.ID)
		if err != nil {
			return nil, err
		}

		if same {
			return &placement{name: candidate, runID: run.ID}, nil
		}
	}

	return nil, fmt.Errorf("no free remote name for %s in %s (tried up to suffix %03d)",
		name, p.runs.Location(), history.MaxSequence)
}

// holdsRun reports whether the remote file name contains the run id. Corrupt
// remote files hold no run.
func (p *s3Publisher) holdsRun(ctx context.Context, name, runID string) (bool, error) {
	data, err := p.runs.Get(ctx, name)
	if err != nil {
		return false, fmt.Errorf("reading remote run file: %w", err)
	}

	run, err := history.Decode(data)
	if err != nil {
		p.log.WithError(err).WithField("file", name).Warn("Remote run file is unreadable")

		return false, nil
	}

	return run.ID == runID, nil
}

// remoteDeletions returns the remote run files to remove: those named before
// ExpireBefore and those still holding a run the cycle pruned. Pruned runs
// are also looked up under later suffixes of the same timestamp, where an
// earlier collision may have placed them.
func (p *s3Publisher) remoteDeletions(
	ctx context.Context,
	req Request,
	remote map[string]struct{},
) ([]string, error) {
	set := make(map[string]struct{}, len(req.Pruned))

	if !req.ExpireBefore.IsZero() {
		for name := range remote {
			if ts, _, ok := history.ParseFileName(name); ok && ts.Before(req.ExpireBefore) {
				set[name] = struct{}{}
			}
		}
	}

	for pruned, runID := range req.Pruned {
		ts, seq, ok := history.ParseFileName(pruned)
		if !ok {
			continue
		}

		for ; seq <= history.MaxSequence; seq++ {
			candidate := history.FileName(ts, seq)

			if _, present := remote[candidate]; !present {
				break
			}

			if _, marked := set[candidate]; marked {
				continue
			}

			same, err := p.holdsRun(ctx, candidate, runID)
			if err != nil {
				return nil, err
			}

			if same {
				set[candidate] = struct{}{}

				break
			}
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// uploadFile uploads a single file to S3.
func (p *s3Publisher) uploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath) //nolint:gosec // path built from configured site
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(detectContentType(localPath)),
	}

	if p.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(p.cfg.StorageClass)
	}

	if p.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(p.cfg.ACL)
	}

	p.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": p.cfg.Bucket,
	}).Debug("Uploading file")

	if _, err := p.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

// resolveKey places rel under the configured site prefix.
func (p *s3Publisher) resolveKey(rel string) string {
	return s3client.JoinKey(p.cfg.Prefix, strings.TrimLeft(rel, "/"))
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return "application/octet-stream"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}
