package gmail

import (
	"context"
	"fmt"
	"net/http"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/normalize"
	"github.com/meridian-hq/meridian/internal/transport"
)

const (
	labelUnread = "UNREAD"
	labelInbox  = "INBOX"
)

// Writer performs mutating mail operations. All mutations are
// label edits; Gmail models read state and archival as labels.
type Writer struct {
	api  API
	exec *transport.Executor
	norm *normalize.Normalizer
	log  *logging.Logger
}

// NewWriter builds a Writer. exec, norm and log may be nil.
func NewWriter(api API, exec *transport.Executor, norm *normalize.Normalizer, log *logging.Logger) *Writer {
	if exec == nil {
		exec = transport.NewExecutor(transport.DefaultRetryConfig(), nil, nil)
	}
	if norm == nil {
		norm = normalize.New(nil, nil)
	}
	if log == nil {
		log = logging.Named("gmail")
	}
	return &Writer{api: api, exec: exec, norm: norm, log: log}
}

// MarkRead sets or clears the unread state of a thread.
func (w *Writer) MarkRead(ctx context.Context, threadID string, read bool) (core.Thread, error) {
	var add, remove []string
	if read {
		remove = []string{labelUnread}
	} else {
		add = []string{labelUnread}
	}
	t, err := w.modify(ctx, threadID, add, remove)
	if err != nil {
		return core.Thread{}, err
	}
	w.log.Info("marked thread %s read=%v", threadID, read)
	return t, nil
}

// Archive removes a thread from the inbox.
func (w *Writer) Archive(ctx context.Context, threadID string) (core.Thread, error) {
	t, err := w.modify(ctx, threadID, nil, []string{labelInbox})
	if err != nil {
		return core.Thread{}, err
	}
	w.log.Info("archived thread %s", threadID)
	return t, nil
}

// ModifyLabels applies arbitrary label edits to a thread.
func (w *Writer) ModifyLabels(ctx context.Context, threadID string, add, remove []string) (core.Thread, error) {
	if len(add) == 0 && len(remove) == 0 {
		return core.Thread{}, fmt.Errorf("modify thread: %w: no label changes", core.ErrInvalidInput)
	}
	return w.modify(ctx, threadID, add, remove)
}

func (w *Writer) modify(ctx context.Context, threadID string, add, remove []string) (core.Thread, error) {
	var raw *gmailapi.Thread
	err := w.exec.Do(ctx, func() error {
		var opErr error
		raw, opErr = w.api.ModifyThread(ctx, threadID, add, remove)
		return opErr
	})
	if err != nil {
		if transport.StatusCode(err) == http.StatusNotFound {
			return core.Thread{}, fmt.Errorf("thread %s: %w", threadID, core.ErrThreadNotFound)
		}
		return core.Thread{}, fmt.Errorf("modify thread %s: %w", threadID, err)
	}
	return w.norm.Thread(raw), nil
}
