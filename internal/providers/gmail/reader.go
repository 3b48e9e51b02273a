package gmail

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/normalize"
	"github.com/meridian-hq/meridian/internal/transport"
)

const defaultPageSize = 50

// Config tunes the reader.
type Config struct {
	// PageSize caps how many thread ids one listing page requests.
	PageSize int64
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	return c
}

// Reader exposes read-side mail operations. Thread listings come back in
// two steps: an id listing, then one paced metadata get per thread.
type Reader struct {
	api   API
	exec  *transport.Executor
	pacer *transport.Pacer
	norm  *normalize.Normalizer
	cfg   Config
	log   *logging.Logger
}

// NewReader builds a Reader. exec, pacer, norm and log may be nil.
func NewReader(api API, exec *transport.Executor, pacer *transport.Pacer, norm *normalize.Normalizer, cfg Config, log *logging.Logger) *Reader {
	if exec == nil {
		exec = transport.NewExecutor(transport.DefaultRetryConfig(), nil, nil)
	}
	if pacer == nil {
		pacer = transport.DefaultPacer(nil)
	}
	if norm == nil {
		norm = normalize.New(nil, nil)
	}
	if log == nil {
		log = logging.Named("gmail")
	}
	return &Reader{api: api, exec: exec, pacer: pacer, norm: norm, cfg: cfg.withDefaults(), log: log}
}

// ListThreads returns one page of thread summaries matching the filter.
// The returned cursor is the provider's own page token; mail listings
// traverse a single collection.
func (r *Reader) ListThreads(ctx context.Context, filter *core.ThreadFilter, limit int, cursorToken string) (core.Page[core.ThreadSummary], error) {
	if limit <= 0 {
		limit = int(r.cfg.PageSize)
	}
	pageSize := int64(limit)
	if pageSize > r.cfg.PageSize {
		pageSize = r.cfg.PageSize
	}

	var resp *gmailapi.ListThreadsResponse
	err := r.exec.Do(ctx, func() error {
		var opErr error
		resp, opErr = r.api.ListThreads(ctx, BuildQuery(filter), cursorToken, pageSize)
		return opErr
	})
	if err != nil {
		return core.Page[core.ThreadSummary]{}, fmt.Errorf("list threads: %w", err)
	}

	ids := make([]string, 0, len(resp.Threads))
	for _, t := range resp.Threads {
		if t == nil || t.Id == "" {
			continue
		}
		ids = append(ids, t.Id)
	}

	summaries, err := r.fetchSummaries(ctx, ids)
	if err != nil {
		return core.Page[core.ThreadSummary]{}, err
	}
	return core.Page[core.ThreadSummary]{
		Items:      summaries,
		NextCursor: resp.NextPageToken,
		Total:      len(summaries),
	}, nil
}

// GetThread fetches one thread. includeBodies controls whether message
// bodies and attachments are hydrated or only headers.
func (r *Reader) GetThread(ctx context.Context, threadID string, includeBodies bool) (core.Thread, error) {
	format := formatMetadata
	if includeBodies {
		format = formatFull
	}
	var raw *gmailapi.Thread
	err := r.exec.Do(ctx, func() error {
		var opErr error
		raw, opErr = r.api.GetThread(ctx, threadID, format)
		return opErr
	})
	if err != nil {
		if transport.StatusCode(err) == http.StatusNotFound {
			return core.Thread{}, fmt.Errorf("thread %s: %w", threadID, core.ErrThreadNotFound)
		}
		return core.Thread{}, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	return r.norm.Thread(raw), nil
}

// FullSync lists every thread matching the filter up to limit and stamps
// the result with the mailbox's current history id, the watermark for
// later incremental calls.
func (r *Reader) FullSync(ctx context.Context, filter *core.ThreadFilter, limit int) (core.Page[core.ThreadSummary], error) {
	if limit <= 0 {
		limit = 500
	}

	// The watermark is stamped before listing. A thread that arrives
	// while the listing runs is then replayed by the next incremental
	// call instead of being lost behind a later watermark.
	watermark, err := r.currentWatermark(ctx)
	if err != nil {
		return core.Page[core.ThreadSummary]{}, err
	}

	var ids []string
	pageToken := ""
	for len(ids) < limit {
		var resp *gmailapi.ListThreadsResponse
		err := r.exec.Do(ctx, func() error {
			var opErr error
			resp, opErr = r.api.ListThreads(ctx, BuildQuery(filter), pageToken, r.cfg.PageSize)
			return opErr
		})
		if err != nil {
			return core.Page[core.ThreadSummary]{}, fmt.Errorf("full sync: %w", err)
		}
		for _, t := range resp.Threads {
			if t == nil || t.Id == "" {
				continue
			}
			ids = append(ids, t.Id)
			if len(ids) >= limit {
				break
			}
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	summaries, err := r.fetchSummaries(ctx, ids)
	if err != nil {
		return core.Page[core.ThreadSummary]{}, err
	}
	return core.Page[core.ThreadSummary]{
		Items:         summaries,
		NextSyncToken: watermark,
		Total:         len(summaries),
	}, nil
}

// IncrementalSync returns the threads touched since the given watermark.
// A watermark the provider no longer holds history for surfaces as
// core.ErrSyncTokenExpired so the caller can fall back to a full sync.
func (r *Reader) IncrementalSync(ctx context.Context, watermark string) (core.Page[core.ThreadSummary], error) {
	startID, err := strconv.ParseUint(watermark, 10, 64)
	if err != nil || startID == 0 {
		return core.Page[core.ThreadSummary]{}, fmt.Errorf("incremental sync: %w: watermark %q", core.ErrInvalidInput, watermark)
	}

	var (
		ids       []string
		seen      = map[string]bool{}
		lastID    uint64
		pageToken string
	)
	for {
		var resp *gmailapi.ListHistoryResponse
		err := r.exec.Do(ctx, func() error {
			var opErr error
			resp, opErr = r.api.ListHistory(ctx, startID, pageToken, r.cfg.PageSize)
			return opErr
		})
		if err != nil {
			// The provider answers 404 when the start id has aged out
			// of its history retention.
			if transport.StatusCode(err) == http.StatusNotFound {
				return core.Page[core.ThreadSummary]{}, fmt.Errorf("incremental sync: %w", core.ErrSyncTokenExpired)
			}
			return core.Page[core.ThreadSummary]{}, fmt.Errorf("incremental sync: %w", err)
		}

		for _, h := range resp.History {
			for _, id := range touchedThreads(h) {
				if id == "" || seen[id] {
					continue
				}
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if resp.HistoryId > lastID {
			lastID = resp.HistoryId
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if lastID == 0 {
		lastID = startID
	}
	summaries, err := r.fetchSummaries(ctx, ids)
	if err != nil {
		return core.Page[core.ThreadSummary]{}, err
	}
	return core.Page[core.ThreadSummary]{
		Items:         summaries,
		NextSyncToken: strconv.FormatUint(lastID, 10),
		Total:         len(summaries),
	}, nil
}

// fetchSummaries hydrates thread ids into summaries via metadata gets,
// pausing between calls to avoid hammering the API. A thread that fails
// to hydrate is skipped; a cancelled context stops the walk.
func (r *Reader) fetchSummaries(ctx context.Context, ids []string) ([]core.ThreadSummary, error) {
	summaries := make([]core.ThreadSummary, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			if err := r.pacer.Pause(ctx); err != nil {
				return nil, err
			}
		}
		var raw *gmailapi.Thread
		err := r.exec.Do(ctx, func() error {
			var opErr error
			raw, opErr = r.api.GetThread(ctx, id, formatMetadata)
			return opErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.Debug("skipping thread %s: %v", id, err)
			continue
		}
		summaries = append(summaries, normalize.ThreadSummary(r.norm.Thread(raw)))
	}
	return summaries, nil
}

func (r *Reader) currentWatermark(ctx context.Context) (string, error) {
	var profile *gmailapi.Profile
	err := r.exec.Do(ctx, func() error {
		var opErr error
		profile, opErr = r.api.GetProfile(ctx)
		return opErr
	})
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

// touchedThreads collects the thread ids one history record mentions.
func touchedThreads(h *gmailapi.History) []string {
	if h == nil {
		return nil
	}
	var ids []string
	for _, m := range h.Messages {
		if m != nil {
			ids = append(ids, m.ThreadId)
		}
	}
	for _, a := range h.MessagesAdded {
		if a != nil && a.Message != nil {
			ids = append(ids, a.Message.ThreadId)
		}
	}
	for _, d := range h.MessagesDeleted {
		if d != nil && d.Message != nil {
			ids = append(ids, d.Message.ThreadId)
		}
	}
	for _, l := range h.LabelsAdded {
		if l != nil && l.Message != nil {
			ids = append(ids, l.Message.ThreadId)
		}
	}
	for _, l := range h.LabelsRemoved {
		if l != nil && l.Message != nil {
			ids = append(ids, l.Message.ThreadId)
		}
	}
	return ids
}

// BuildQuery renders a thread filter in the provider's search syntax.
// Nil and zero-valued filters produce the empty query.
func BuildQuery(f *core.ThreadFilter) string {
	if f == nil {
		return ""
	}
	var parts []string
	add := func(s string) { parts = append(parts, s) }

	if f.Unread != nil {
		if *f.Unread {
			add("is:unread")
		} else {
			add("-is:unread")
		}
	}
	if f.Starred != nil {
		if *f.Starred {
			add("is:starred")
		} else {
			add("-is:starred")
		}
	}
	if f.HasAttachment != nil {
		if *f.HasAttachment {
			add("has:attachment")
		} else {
			add("-has:attachment")
		}
	}
	if f.FromContains != "" {
		add("from:" + quoteTerm(f.FromContains))
	}
	if f.ToContains != "" {
		add("to:" + quoteTerm(f.ToContains))
	}
	if f.SubjectContains != "" {
		add("subject:" + quoteTerm(f.SubjectContains))
	}
	if len(f.LabelIn) == 1 {
		add("label:" + f.LabelIn[0])
	} else if len(f.LabelIn) > 1 {
		// Multiple labels match as an OR group.
		terms := make([]string, 0, len(f.LabelIn))
		for _, l := range f.LabelIn {
			terms = append(terms, "label:"+l)
		}
		add("{" + strings.Join(terms, " ") + "}")
	}
	if f.After != nil {
		add("after:" + f.After.Format("2006/01/02"))
	}
	if f.Before != nil {
		add("before:" + f.Before.Format("2006/01/02"))
	}
	if s := strings.TrimSpace(f.FreeText); s != "" {
		add(s)
	}
	return strings.Join(parts, " ")
}

// quoteTerm wraps terms containing spaces so they stay one search token.
func quoteTerm(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}
