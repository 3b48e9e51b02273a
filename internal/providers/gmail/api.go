// Package gmail is the Gmail adapter: query-scoped thread listing with
// paced per-thread hydration, and history-based incremental sync.
package gmail

import (
	"context"

	gmailapi "google.golang.org/api/gmail/v1"
)

// The authenticated user in every Gmail call.
const me = "me"

// Thread detail levels for gets.
const (
	formatMetadata = "metadata"
	formatFull     = "full"
)

// API is the transport surface the reader and writer depend on. Tests
// substitute fakes; production uses the wrapped Gmail service.
type API interface {
	ListThreads(ctx context.Context, query, pageToken string, maxResults int64) (*gmailapi.ListThreadsResponse, error)
	GetThread(ctx context.Context, threadID, format string) (*gmailapi.Thread, error)
	ListHistory(ctx context.Context, startHistoryID uint64, pageToken string, maxResults int64) (*gmailapi.ListHistoryResponse, error)
	GetProfile(ctx context.Context) (*gmailapi.Profile, error)
	ModifyThread(ctx context.Context, threadID string, addLabels, removeLabels []string) (*gmailapi.Thread, error)
	CreateDraft(ctx context.Context, draft *gmailapi.Draft) (*gmailapi.Draft, error)
	SendDraft(ctx context.Context, draftID string) (*gmailapi.Message, error)
}

type serviceAPI struct {
	svc *gmailapi.Service
}

// NewAPI wraps a Gmail service.
func NewAPI(svc *gmailapi.Service) API {
	return &serviceAPI{svc: svc}
}

func (a *serviceAPI) ListThreads(ctx context.Context, query, pageToken string, maxResults int64) (*gmailapi.ListThreadsResponse, error) {
	call := a.svc.Users.Threads.List(me).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}
	return call.Do()
}

func (a *serviceAPI) GetThread(ctx context.Context, threadID, format string) (*gmailapi.Thread, error) {
	call := a.svc.Users.Threads.Get(me, threadID).Context(ctx)
	if format != "" {
		call = call.Format(format)
	}
	return call.Do()
}

func (a *serviceAPI) ListHistory(ctx context.Context, startHistoryID uint64, pageToken string, maxResults int64) (*gmailapi.ListHistoryResponse, error) {
	call := a.svc.Users.History.List(me).
		Context(ctx).
		StartHistoryId(startHistoryID)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}
	return call.Do()
}

func (a *serviceAPI) GetProfile(ctx context.Context) (*gmailapi.Profile, error) {
	return a.svc.Users.GetProfile(me).Context(ctx).Do()
}

func (a *serviceAPI) CreateDraft(ctx context.Context, draft *gmailapi.Draft) (*gmailapi.Draft, error) {
	return a.svc.Users.Drafts.Create(me, draft).Context(ctx).Do()
}

func (a *serviceAPI) SendDraft(ctx context.Context, draftID string) (*gmailapi.Message, error) {
	return a.svc.Users.Drafts.Send(me, &gmailapi.Draft{Id: draftID}).Context(ctx).Do()
}

func (a *serviceAPI) ModifyThread(ctx context.Context, threadID string, addLabels, removeLabels []string) (*gmailapi.Thread, error) {
	return a.svc.Users.Threads.Modify(me, threadID, &gmailapi.ModifyThreadRequest{
		AddLabelIds:    addLabels,
		RemoveLabelIds: removeLabels,
	}).Context(ctx).Do()
}
