package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// TokenStore persists the single OAuth token used for the shared calendar.
// Load returns nil, nil when nothing has been stored.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
}

type GoogleNotifier struct {
	oauth      *oauth2.Config
	tokens     TokenStore
	calendarID string
	timeZone   string

	// endpoint overrides the API base URL; empty means Google's.
	endpoint string
}

func NewGoogleNotifier(cfg config.CalendarConfig, tokens TokenStore) *GoogleNotifier {
	return &GoogleNotifier{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gcal.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		tokens:     tokens,
		calendarID: cfg.CalendarID,
		timeZone:   cfg.TimeZone,
	}
}

// AuthCodeURL is where /google sends the operator to grant calendar access.
func (g *GoogleNotifier) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the redirect code for a token and stores it.
func (g *GoogleNotifier) Exchange(ctx context.Context, code string) error {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := g.tokens.Save(ctx, tok); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (g *GoogleNotifier) CreateEvent(ctx context.Context, req EventRequest) (*EventConfirmation, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	attendees := make([]*gcal.EventAttendee, 0, len(req.Attendees))
	for _, email := range req.Attendees {
		attendees = append(attendees, &gcal.EventAttendee{Email: email})
	}

	event := &gcal.Event{
		Summary:     req.Summary,
		Location:    req.Location,
		Description: req.Description,
		Start: &gcal.EventDateTime{
			DateTime: req.Start.Format(time.RFC3339),
			TimeZone: g.timeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: req.End.Format(time.RFC3339),
			TimeZone: g.timeZone,
		},
		Attendees: attendees,
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := svc.Events.Insert(g.calendarID, event).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", err)
	}

	return &EventConfirmation{
		ID:       created.Id,
		HTMLLink: created.HtmlLink,
		Status:   created.Status,
		Summary:  created.Summary,
		Start:    req.Start,
		End:      req.End,
	}, nil
}

func (g *GoogleNotifier) DeleteEvent(ctx context.Context, eventID string) error {
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(g.calendarID, eventID).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete calendar event %s: %w", eventID, err)
	}
	return nil
}

func (g *GoogleNotifier) service(ctx context.Context) (*gcal.Service, error) {
	tok, err := g.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calendar token: %w", err)
	}
	if tok == nil {
		return nil, ErrNotConnected
	}

	ts := &persistingTokenSource{
		base:  g.oauth.TokenSource(ctx, tok),
		store: g.tokens,
		last:  tok.AccessToken,
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return gcal.NewService(ctx, opts...)
}

// persistingTokenSource saves refreshed tokens so a restart keeps working.
type persistingTokenSource struct {
	base  oauth2.TokenSource
	store TokenStore

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := p.store.Save(ctx, tok); err != nil {
			logger.Warn("failed to persist refreshed calendar token", "error", err)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}
