package ddar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/anjor/ddar/internal/archive"
	"github.com/anjor/ddar/internal/collector/noop"
	"github.com/anjor/ddar/internal/digest"
	"github.com/anjor/ddar/internal/index"
	"github.com/anjor/ddar/internal/util/text"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// runScan chunks every source on its own engine, up to --jobs at a time.
func (d *Ddar) runScan(ctx context.Context) error {
	sources := d.args
	if len(sources) == 0 {
		sources = []string{"-"}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.cfg.Jobs)
	for _, name := range sources {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			hasher, err := digest.NewHasher(d.cfg.hashFunc)
			if err != nil {
				return err
			}

			src, closer, err := d.openSource(name)
			if err != nil {
				return err
			}
			defer closer()

			return d.processStream(name, src, d.chunkerCfg, hasher, noop.NewCollector())
		})
	}
	return eg.Wait()
}

func (d *Ddar) openArchive() (*archive.Archive, error) {
	a, err := archive.Open(d.args[0], d.logger)
	if err != nil {
		return nil, err
	}
	if errs := d.checkArchiveParams(a.Params()); len(errs) > 0 {
		a.Close()
		return nil, errors.Join(errs...)
	}
	return a, nil
}

func (d *Ddar) runAdd(ctx context.Context) error {
	a, err := archive.OpenOrCreate(d.args[0], d.archiveParams, d.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if errs := d.checkArchiveParams(a.Params()); len(errs) > 0 {
		return errors.Join(errs...)
	}

	// boundaries follow the archive, only the io settings are ours
	cfg := d.withIOSettings(a.ChunkerConfig())
	hasher := a.NewHasher()
	d.statSummary.Chunker = a.Params().Chunker
	d.statSummary.Hash = a.Params().Hash

	for i, fn := range d.args[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}

		tag := filepath.Base(fn)
		if i == 0 && d.cfg.Name != "" {
			tag = d.cfg.Name
		}

		mw, err := a.NewMemberWriter(tag)
		if err != nil {
			return err
		}

		src, closer, err := d.openSource(fn)
		if err != nil {
			mw.Abort()
			return err
		}
		err = d.processStream(tag, src, cfg, hasher, mw)
		closer()
		if err != nil {
			return err
		}

		d.accountMember(mw.Stats())
		d.logger.Info(
			"added",
			"member", tag,
			"size", humanize.IBytes(uint64(mw.Stats().Bytes)),
			"chunks", mw.Stats().Chunks,
			"new", mw.Stats().NewChunks,
		)
	}

	return nil
}

// extractTarget is where the i-th requested member is written, "-" being
// stdOUT.
func (d *Ddar) extractTarget(i int, tag string) string {
	if i == 0 && d.cfg.OutputName != "" {
		return d.cfg.OutputName
	}
	return tag
}

func (d *Ddar) runExtract(ctx context.Context) error {
	a, err := d.openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	for i, tag := range d.args[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.extractOne(a, tag, d.extractTarget(i, tag)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Ddar) extractOne(a *archive.Archive, tag, target string) (err error) {
	var w io.Writer = d.stdout
	if target != "-" {
		f, createErr := os.Create(target)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(target)
			}
		}()
		w = f
	}

	n, err := a.Extract(tag, w)
	if err != nil {
		return fmt.Errorf("extracting '%s': %w", tag, err)
	}
	d.logger.Debug("extracted", "member", tag, "to", target, "size", text.Commify64(n))
	return nil
}

func (d *Ddar) runDelete() error {
	a, err := d.openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, tag := range d.args[1:] {
		if err := a.Delete(tag); err != nil {
			return fmt.Errorf("deleting '%s': %w", tag, err)
		}
		d.logger.Debug("deleted", "member", tag)
	}
	return nil
}

func (d *Ddar) runList() error {
	a, err := d.openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	patterns := d.args[1:]
	if len(patterns) == 0 {
		patterns = []string{""}
	}

	seen := make(map[string]struct{})
	for _, p := range patterns {
		members, err := a.List(p)
		if err != nil {
			return err
		}
		for _, m := range members {
			if _, dup := seen[m.Tag]; dup {
				continue
			}
			seen[m.Tag] = struct{}{}
			if err := d.listMember(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Ddar) listMember(m index.Member) (err error) {
	if d.cfg.Verbose {
		_, err = fmt.Fprintf(d.stdout, "%10s %10s %s  %s\n",
			humanize.IBytes(uint64(m.Size)),
			text.Commify64(m.Chunks),
			m.Created.Local().Format("2006-01-02 15:04:05"),
			m.Tag,
		)
	} else {
		_, err = fmt.Fprintln(d.stdout, m.Tag)
	}
	return
}

func (d *Ddar) runFsck(ctx context.Context) error {
	a, err := d.openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.Fsck(ctx, d.cfg.Jobs)
	if err != nil {
		return err
	}

	for _, p := range r.Problems {
		if _, err := fmt.Fprintln(d.stdout, p); err != nil {
			return err
		}
	}

	d.logger.Info(
		"fsck complete",
		"members", r.Members,
		"chunks", r.Chunks,
		"objects", r.Objects,
		"problems", len(r.Problems),
	)

	if !r.OK() {
		return fmt.Errorf("%w: %d problem(s) found", archive.ErrCorrupt, len(r.Problems))
	}
	return nil
}
