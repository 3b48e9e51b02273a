package gmail

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
)

type recordingAPI struct {
	fakeAPI
	add    []string
	remove []string
}

func (r *recordingAPI) ModifyThread(ctx context.Context, threadID string, add, remove []string) (*gmailapi.Thread, error) {
	r.add = add
	r.remove = remove
	return r.fakeAPI.ModifyThread(ctx, threadID, add, remove)
}

func testWriter(t *testing.T, api API) *Writer {
	t.Helper()
	return NewWriter(api, nil, nil, logging.New(logging.ERROR, io.Discard))
}

func TestMarkRead(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	api := &recordingAPI{fakeAPI: fakeAPI{threads: map[string]*gmailapi.Thread{
		"t1": rawThread("t1", base, "INBOX", "UNREAD"),
	}}}
	w := testWriter(t, api)

	if _, err := w.MarkRead(context.Background(), "t1", true); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(api.remove) != 1 || api.remove[0] != "UNREAD" {
		t.Errorf("remove = %v, want [UNREAD]", api.remove)
	}
	if len(api.add) != 0 {
		t.Errorf("add = %v, want none", api.add)
	}

	if _, err := w.MarkRead(context.Background(), "t1", false); err != nil {
		t.Fatalf("MarkRead unread: %v", err)
	}
	if len(api.add) != 1 || api.add[0] != "UNREAD" {
		t.Errorf("add = %v, want [UNREAD]", api.add)
	}
}

func TestArchive(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	api := &recordingAPI{fakeAPI: fakeAPI{threads: map[string]*gmailapi.Thread{
		"t1": rawThread("t1", base, "INBOX"),
	}}}
	w := testWriter(t, api)

	if _, err := w.Archive(context.Background(), "t1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(api.remove) != 1 || api.remove[0] != "INBOX" {
		t.Errorf("remove = %v, want [INBOX]", api.remove)
	}
}

func TestModifyMissingThread(t *testing.T) {
	w := testWriter(t, &fakeAPI{threads: map[string]*gmailapi.Thread{}})
	if _, err := w.MarkRead(context.Background(), "missing", true); !errors.Is(err, core.ErrThreadNotFound) {
		t.Fatalf("err = %v, want ErrThreadNotFound", err)
	}
}

func TestModifyLabelsRequiresChanges(t *testing.T) {
	w := testWriter(t, &fakeAPI{threads: map[string]*gmailapi.Thread{}})
	if _, err := w.ModifyLabels(context.Background(), "t1", nil, nil); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
