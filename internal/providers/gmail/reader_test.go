package gmail

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/normalize"
	"github.com/meridian-hq/meridian/internal/testutil"
	"github.com/meridian-hq/meridian/internal/transport"
)

type fakeAPI struct {
	threads   map[string]*gmailapi.Thread
	order     []string
	history   []*gmailapi.History
	historyID uint64

	drafts       map[string]*gmailapi.Draft
	draftSeq     int
	profileEmail string

	historyErr error
	getErr     map[string]error

	// afterList runs after a listing response is built, for injecting
	// mailbox changes that race with a sync.
	afterList func()

	lastQuery string
	getCalls  int
}

func rawThread(id string, ts time.Time, labels ...string) *gmailapi.Thread {
	return &gmailapi.Thread{
		Id: id,
		Messages: []*gmailapi.Message{{
			Id:           id + "-m1",
			ThreadId:     id,
			InternalDate: ts.UnixMilli(),
			LabelIds:     labels,
			Snippet:      "snippet " + id,
			Payload: &gmailapi.MessagePart{
				Headers: []*gmailapi.MessagePartHeader{
					{Name: "Subject", Value: "subject " + id},
					{Name: "From", Value: id + "@example.com"},
				},
			},
		}},
	}
}

func (f *fakeAPI) ListThreads(ctx context.Context, query, pageToken string, maxResults int64) (*gmailapi.ListThreadsResponse, error) {
	f.lastQuery = query
	offset := 0
	if pageToken != "" {
		offset, _ = strconv.Atoi(pageToken)
	}
	size := len(f.order) - offset
	if maxResults > 0 && int(maxResults) < size {
		size = int(maxResults)
	}
	resp := &gmailapi.ListThreadsResponse{}
	for _, id := range f.order[offset : offset+size] {
		resp.Threads = append(resp.Threads, &gmailapi.Thread{Id: id})
	}
	if offset+size < len(f.order) {
		resp.NextPageToken = strconv.Itoa(offset + size)
	}
	if f.afterList != nil {
		f.afterList()
	}
	return resp, nil
}

func (f *fakeAPI) GetThread(ctx context.Context, threadID, format string) (*gmailapi.Thread, error) {
	f.getCalls++
	if err := f.getErr[threadID]; err != nil {
		return nil, err
	}
	t, ok := f.threads[threadID]
	if !ok {
		return nil, &googleapi.Error{Code: http.StatusNotFound}
	}
	return t, nil
}

func (f *fakeAPI) ListHistory(ctx context.Context, startHistoryID uint64, pageToken string, maxResults int64) (*gmailapi.ListHistoryResponse, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return &gmailapi.ListHistoryResponse{
		History:   f.history,
		HistoryId: f.historyID,
	}, nil
}

func (f *fakeAPI) GetProfile(ctx context.Context) (*gmailapi.Profile, error) {
	return &gmailapi.Profile{HistoryId: f.historyID, EmailAddress: f.profileEmail}, nil
}

func (f *fakeAPI) CreateDraft(ctx context.Context, draft *gmailapi.Draft) (*gmailapi.Draft, error) {
	if f.drafts == nil {
		f.drafts = map[string]*gmailapi.Draft{}
	}
	f.draftSeq++
	created := &gmailapi.Draft{Id: "draft-" + strconv.Itoa(f.draftSeq), Message: draft.Message}
	f.drafts[created.Id] = created
	return created, nil
}

func (f *fakeAPI) SendDraft(ctx context.Context, draftID string) (*gmailapi.Message, error) {
	draft, ok := f.drafts[draftID]
	if !ok {
		return nil, &googleapi.Error{Code: http.StatusNotFound}
	}
	delete(f.drafts, draftID)
	sent := &gmailapi.Message{Id: "sent-" + draftID}
	if draft.Message != nil {
		sent.ThreadId = draft.Message.ThreadId
	}
	return sent, nil
}

func (f *fakeAPI) ModifyThread(ctx context.Context, threadID string, add, remove []string) (*gmailapi.Thread, error) {
	t, ok := f.threads[threadID]
	if !ok {
		return nil, &googleapi.Error{Code: http.StatusNotFound}
	}
	return t, nil
}

func testReader(t *testing.T, api API) *Reader {
	t.Helper()
	log := logging.New(logging.ERROR, io.Discard)
	clock := testutil.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	exec := transport.NewExecutor(transport.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Cap: time.Second}, clock, log)
	pacer := transport.NewPacer(time.Millisecond, 2*time.Millisecond, clock)
	return NewReader(api, exec, pacer, normalize.New(clock, log), Config{PageSize: 2}, log)
}

func TestListThreadsHydratesSummaries(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		order: []string{"t1", "t2"},
		threads: map[string]*gmailapi.Thread{
			"t1": rawThread("t1", base, "INBOX", "UNREAD"),
			"t2": rawThread("t2", base.Add(time.Hour), "INBOX"),
		},
	}
	r := testReader(t, api)

	page, err := r.ListThreads(context.Background(), nil, 10, "")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	if page.Items[0].Subject != "subject t1" {
		t.Errorf("subject = %q", page.Items[0].Subject)
	}
	if !page.Items[0].Unread || page.Items[1].Unread {
		t.Error("unread flags wrong")
	}
}

func TestListThreadsSkipsFailedHydration(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		order: []string{"t1", "t2"},
		threads: map[string]*gmailapi.Thread{
			"t1": rawThread("t1", base),
			"t2": rawThread("t2", base),
		},
		getErr: map[string]error{"t1": &googleapi.Error{Code: http.StatusNotFound}},
	}
	r := testReader(t, api)

	page, err := r.ListThreads(context.Background(), nil, 10, "")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "t2" {
		t.Errorf("items = %+v, want only t2", page.Items)
	}
}

func TestFullSyncStampsWatermark(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		order: []string{"t1", "t2", "t3"},
		threads: map[string]*gmailapi.Thread{
			"t1": rawThread("t1", base),
			"t2": rawThread("t2", base),
			"t3": rawThread("t3", base),
		},
		historyID: 4711,
	}
	r := testReader(t, api)

	page, err := r.FullSync(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	if len(page.Items) != 3 {
		t.Errorf("items = %d, want 3 across pages", len(page.Items))
	}
	if page.NextSyncToken != "4711" {
		t.Errorf("watermark = %q, want 4711", page.NextSyncToken)
	}
}

// A thread delivered while a full sync runs must land behind the stamped
// watermark, not in front of it, so the next incremental call picks it up.
func TestFullSyncWatermarkCoversConcurrentDelivery(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		order:     []string{"t1"},
		threads:   map[string]*gmailapi.Thread{"t1": rawThread("t1", base)},
		historyID: 100,
	}
	api.afterList = func() {
		// t2 arrives after the listing response was produced.
		api.afterList = nil
		api.threads["t2"] = rawThread("t2", base.Add(time.Minute))
		api.history = append(api.history, &gmailapi.History{
			MessagesAdded: []*gmailapi.HistoryMessageAdded{
				{Message: &gmailapi.Message{Id: "m2", ThreadId: "t2"}},
			},
		})
		api.historyID = 200
	}
	r := testReader(t, api)

	full, err := r.FullSync(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	if len(full.Items) != 1 || full.Items[0].ID != "t1" {
		t.Fatalf("full items = %+v, want only t1", full.Items)
	}
	if full.NextSyncToken != "100" {
		t.Fatalf("watermark = %q, want the pre-listing 100", full.NextSyncToken)
	}

	incr, err := r.IncrementalSync(context.Background(), full.NextSyncToken)
	if err != nil {
		t.Fatalf("IncrementalSync: %v", err)
	}
	if len(incr.Items) != 1 || incr.Items[0].ID != "t2" {
		t.Errorf("incremental items = %+v, want the delivered t2", incr.Items)
	}
	if incr.NextSyncToken != "200" {
		t.Errorf("watermark = %q, want 200", incr.NextSyncToken)
	}
}

func TestIncrementalSyncDedupesThreads(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		threads: map[string]*gmailapi.Thread{
			"t1": rawThread("t1", base),
			"t2": rawThread("t2", base),
		},
		history: []*gmailapi.History{
			{Messages: []*gmailapi.Message{{Id: "m1", ThreadId: "t1"}}},
			{MessagesAdded: []*gmailapi.HistoryMessageAdded{{Message: &gmailapi.Message{Id: "m2", ThreadId: "t1"}}}},
			{LabelsAdded: []*gmailapi.HistoryLabelAdded{{Message: &gmailapi.Message{Id: "m3", ThreadId: "t2"}}}},
		},
		historyID: 9000,
	}
	r := testReader(t, api)

	page, err := r.IncrementalSync(context.Background(), "8000")
	if err != nil {
		t.Fatalf("IncrementalSync: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("items = %d, want t1 deduped with t2", len(page.Items))
	}
	if page.NextSyncToken != "9000" {
		t.Errorf("watermark = %q, want 9000", page.NextSyncToken)
	}
}

func TestIncrementalSyncExpiredWatermark(t *testing.T) {
	api := &fakeAPI{historyErr: &googleapi.Error{Code: http.StatusNotFound}}
	r := testReader(t, api)

	if _, err := r.IncrementalSync(context.Background(), "123"); !errors.Is(err, core.ErrSyncTokenExpired) {
		t.Fatalf("err = %v, want ErrSyncTokenExpired", err)
	}
}

func TestIncrementalSyncRejectsBadWatermark(t *testing.T) {
	r := testReader(t, &fakeAPI{})
	for _, watermark := range []string{"", "abc", "0"} {
		if _, err := r.IncrementalSync(context.Background(), watermark); !errors.Is(err, core.ErrInvalidInput) {
			t.Errorf("watermark %q: err = %v, want ErrInvalidInput", watermark, err)
		}
	}
}

func TestGetThreadNotFound(t *testing.T) {
	r := testReader(t, &fakeAPI{threads: map[string]*gmailapi.Thread{}})
	if _, err := r.GetThread(context.Background(), "missing", false); !errors.Is(err, core.ErrThreadNotFound) {
		t.Fatalf("err = %v, want ErrThreadNotFound", err)
	}
}

func TestBuildQuery(t *testing.T) {
	cases := []struct {
		name   string
		filter *core.ThreadFilter
		want   string
	}{
		{"nil filter", nil, ""},
		{"empty filter", &core.ThreadFilter{}, ""},
		{"unread", &core.ThreadFilter{Unread: core.Bool(true)}, "is:unread"},
		{"read", &core.ThreadFilter{Unread: core.Bool(false)}, "-is:unread"},
		{"starred with attachment", &core.ThreadFilter{
			Starred:       core.Bool(true),
			HasAttachment: core.Bool(true),
		}, "is:starred has:attachment"},
		{"sender", &core.ThreadFilter{FromContains: "ana@example.com"}, "from:ana@example.com"},
		{"quoted subject", &core.ThreadFilter{SubjectContains: "yearly report"}, `subject:"yearly report"`},
		{"one label", &core.ThreadFilter{LabelIn: []string{"work"}}, "label:work"},
		{"label group", &core.ThreadFilter{LabelIn: []string{"work", "urgent"}}, "{label:work label:urgent}"},
		{"window", &core.ThreadFilter{
			After:  timePtr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
			Before: timePtr(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
		}, "after:2025/01/01 before:2025/02/01"},
		{"free text", &core.ThreadFilter{FreeText: "  invoice  "}, "invoice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildQuery(tc.filter); got != tc.want {
				t.Errorf("BuildQuery = %q, want %q", got, tc.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
