package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/familytree/modules/family/domain/aggregates/member"
	"github.com/iota-uz/familytree/pkg/logging"
	"github.com/iota-uz/familytree/pkg/spreadsheet"
)

type MatchMode string

const (
	// MatchFallback looks members up by name and birth date. Without a birth
	// date, a member with no other data only merges with a bare record of
	// the same name; otherwise any record of that name without a birth date
	// matches.
	MatchFallback MatchMode = "fallback"
	// MatchExact always looks members up by the exact name and birth date.
	MatchExact MatchMode = "exact"
)

var ErrUnknownMatchMode = errors.New("unknown match mode")

// ReadError marks a failure that happened before the row wrote anything: a
// lookup failed or the row transaction could not start.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return e.Err.Error() }

func (e *ReadError) Unwrap() error { return e.Err }

type ImportOptions struct {
	MatchMode MatchMode
	Logger    *logrus.Entry
	Metrics   *Metrics
}

func (o *ImportOptions) setDefaults() {
	if o.MatchMode == "" {
		o.MatchMode = MatchFallback
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics()
	}
}

// Report summarises one import run.
type Report struct {
	Rows        int         `json:"rows"`
	SkippedRows int         `json:"skipped_rows"`
	Inserted    int         `json:"inserted"`
	Updated     int         `json:"updated"`
	SpouseLinks int         `json:"spouse_links"`
	ChildLinks  int         `json:"child_links"`
	InsertedIDs []member.ID `json:"inserted_ids"`
	UpdatedIDs  []member.ID `json:"updated_ids"`
}

type rowResult struct {
	inserted    []member.ID
	updated     []member.ID
	spouseLinks int
	childLinks  int
}

func (r *Report) add(res rowResult) {
	r.Inserted += len(res.inserted)
	r.Updated += len(res.updated)
	r.SpouseLinks += res.spouseLinks
	r.ChildLinks += res.childLinks
	r.InsertedIDs = appendUnique(r.InsertedIDs, res.inserted...)
	r.UpdatedIDs = appendUnique(r.UpdatedIDs, res.updated...)
}

// ImportService writes spreadsheet rows of family members to a repository.
// Each row is one unit of work: its members are upserted in slot order, then
// slot 1 and 2 are married and every later slot becomes their child.
type ImportService struct {
	repo member.Repository
	opts ImportOptions
}

func NewImportService(repo member.Repository, opts ImportOptions) *ImportService {
	opts.setDefaults()
	return &ImportService{repo: repo, opts: opts}
}

func (s *ImportService) Metrics() *Metrics {
	return s.opts.Metrics
}

// Import processes the rows of sheet in order. It stops at the first storage
// error; rows before it stay written.
func (s *ImportService) Import(ctx context.Context, sheet *spreadsheet.Sheet) (Report, error) {
	var report Report
	if s.opts.MatchMode != MatchFallback && s.opts.MatchMode != MatchExact {
		return report, fmt.Errorf("%w: %q", ErrUnknownMatchMode, s.opts.MatchMode)
	}

	started := time.Now()
	defer func() { s.opts.Metrics.observeRun(time.Since(started)) }()

	sheet = PrepareSheet(sheet)
	schema := schemaFor(sheet)
	log := s.opts.Logger.WithFields(logrus.Fields{
		"sheet": sheet.Name,
		"match": s.opts.MatchMode,
	})
	log.WithFields(logrus.Fields{
		"rows":  len(sheet.Rows),
		"slots": schema.Slots(),
	}).Info("import started")

	for _, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Rows++
		rowLog := log.WithField("row", row.Line)

		addresses := SplitAddresses(cell(row, AddressColumn))
		rowLog.WithField("addresses", addresses).Debug("split addresses")

		candidates := schema.Candidates(row, addresses)
		if len(candidates) == 0 {
			report.SkippedRows++
			s.opts.Metrics.row("skipped")
			rowLog.Warn("row has no members, skipped")
			continue
		}

		var (
			res   rowResult
			began bool
		)
		err := s.repo.InTx(ctx, func(ctx context.Context) error {
			began = true
			var err error
			res, err = s.importRow(ctx, rowLog, candidates)
			return err
		})
		if err != nil && !began {
			err = &ReadError{Err: err}
		}
		if err != nil {
			s.opts.Metrics.row("failed")
			return report, fmt.Errorf("row %d: %w", row.Line, err)
		}
		s.opts.Metrics.row("imported")
		report.add(res)
	}

	log.WithFields(logrus.Fields{
		"rows":         report.Rows,
		"skipped":      report.SkippedRows,
		"inserted":     report.Inserted,
		"updated":      report.Updated,
		"spouse_links": report.SpouseLinks,
		"child_links":  report.ChildLinks,
		"took":         time.Since(started).Round(time.Millisecond),
	}).Info("import finished")
	return report, nil
}

func (s *ImportService) importRow(ctx context.Context, log *logrus.Entry, candidates []member.Member) (rowResult, error) {
	var res rowResult
	ids := make([]member.ID, 0, len(candidates))
	for i, c := range candidates {
		slot := i + 1
		mlog := log.WithFields(logrus.Fields{"slot": slot, "name": c.Name()})
		mlog.Debug("processing member")

		id, inserted, err := s.upsert(ctx, c)
		if err != nil {
			return res, fmt.Errorf("slot %d (%s): %w", slot, c.Name(), err)
		}
		if inserted {
			res.inserted = append(res.inserted, id)
			s.opts.Metrics.member("inserted")
			mlog.WithField("id", id).Debug("inserted member")
		} else {
			res.updated = append(res.updated, id)
			s.opts.Metrics.member("updated")
			mlog.WithField("id", id).Debug("updated member")
		}
		ids = append(ids, id)
	}

	if err := s.link(ctx, ids, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (s *ImportService) upsert(ctx context.Context, c member.Member) (member.ID, bool, error) {
	existing, err := s.repo.FindOne(ctx, s.matchFilter(c))
	if errors.Is(err, member.ErrNotFound) {
		id, err := s.repo.Insert(ctx, c)
		if err != nil {
			return "", false, err
		}
		return id, true, nil
	}
	if err != nil {
		return "", false, &ReadError{Err: err}
	}
	if err := s.repo.Update(ctx, existing.ID(), reimportPatch(c)); err != nil {
		return "", false, err
	}
	return existing.ID(), false, nil
}

func (s *ImportService) matchFilter(c member.Member) member.Filter {
	f := member.Filter{Name: c.Name(), DateOfBirth: c.DateOfBirth()}
	if s.opts.MatchMode == MatchFallback && c.IsBare() {
		f.Bare = true
	}
	return f
}

// reimportPatch refreshes a stored member from a new row. The address and
// image are kept when the row has none; children are cleared and rebuilt
// by the row's links.
func reimportPatch(c member.Member) member.Patch {
	p := member.Patch{
		Phone:      member.Some(c.Phone()),
		Occupation: member.Maybe(c.Occupation()),
		Children:   member.Some([]member.ID{}),
	}
	if addr := c.Address(); addr != nil {
		p.Address = member.Some(*addr)
	}
	if img := c.Image(); img != nil {
		p.Image = member.Some(*img)
	}
	return p
}

func (s *ImportService) link(ctx context.Context, ids []member.ID, res *rowResult) error {
	if len(ids) < 2 {
		return nil
	}
	head, partner := ids[0], ids[1]
	if err := s.repo.Update(ctx, partner, member.Patch{Spouse: member.Some(head)}); err != nil {
		return fmt.Errorf("link spouse %s: %w", partner, err)
	}
	if err := s.repo.Update(ctx, head, member.Patch{Spouse: member.Some(partner)}); err != nil {
		return fmt.Errorf("link spouse %s: %w", head, err)
	}
	res.spouseLinks++
	s.opts.Metrics.link("spouse", 1)

	for _, child := range ids[2:] {
		for _, parent := range []member.ID{head, partner} {
			if err := s.repo.AddChild(ctx, parent, child); err != nil {
				return fmt.Errorf("link child %s to %s: %w", child, parent, err)
			}
			res.childLinks++
		}
	}
	s.opts.Metrics.link("child", 2*len(ids[2:]))
	return nil
}

func appendUnique(dst []member.ID, ids ...member.ID) []member.ID {
	for _, id := range ids {
		if !slices.Contains(dst, id) {
			dst = append(dst, id)
		}
	}
	return dst
}
