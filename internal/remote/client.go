package remote

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
	"github.com/go-resty/resty/v2"
)

// OwnerHeader carries the authenticated owner on every request.
const OwnerHeader = "X-Owner-ID"

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Owner   string
	Timeout time.Duration
	// Retries applies to reads only; writes are never replayed.
	Retries int
}

// Client talks to the reference record service over HTTP. It implements
// RecordStore, SummaryStore and SummaryReader.
type Client struct {
	http  *resty.Client
	owner string
}

var (
	_ RecordStore   = (*Client)(nil)
	_ SummaryStore  = (*Client)(nil)
	_ SummaryReader = (*Client)(nil)
)

// problem mirrors the service's RFC 7807 body.
type problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// NewClient creates a Client for cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: c, owner: cfg.Owner}
}

func (c *Client) request(ctx context.Context, owner string) *resty.Request {
	if owner == "" {
		owner = c.owner
	}
	return c.http.R().
		SetContext(ctx).
		SetHeader(OwnerHeader, owner).
		SetError(&problem{})
}

// check converts a transport error or non-2xx response into *Error.
func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		slog.Warn("remote call failed",
			"component", "remote",
			"action", op,
			"error", err,
		)
		return &Error{Code: CodeUnavailable, Message: err.Error(), Err: err}
	}
	if !resp.IsError() {
		return nil
	}

	status := resp.StatusCode()
	e := &Error{Code: CodeForStatus(status), Status: status, Message: http.StatusText(status)}
	if p, ok := resp.Error().(*problem); ok && p != nil {
		if p.Code != "" {
			e.Code = p.Code
		}
		if p.Detail != "" {
			e.Message = p.Detail
		}
	}
	slog.Debug("remote call rejected",
		"component", "remote",
		"action", op,
		"status", status,
		"code", e.Code,
	)
	return e
}

// Ping checks that the service answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).SetError(&problem{}).Get("/api/v1/health")
	return check("ping", resp, err)
}

func (c *Client) Insert(ctx context.Context, rec types.Encounter) (types.Encounter, error) {
	var out types.Encounter
	resp, err := c.request(ctx, rec.Owner).
		SetBody(rec.RemotePayload()).
		SetResult(&out).
		Post("/api/v1/encounters")
	if err := check("insert", resp, err); err != nil {
		return types.Encounter{}, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, id, owner string, rec types.Encounter) (types.Encounter, error) {
	var out types.Encounter
	resp, err := c.request(ctx, owner).
		SetPathParam("id", id).
		SetBody(rec.RemotePayload()).
		SetResult(&out).
		Patch("/api/v1/encounters/{id}")
	if err := check("update", resp, err); err != nil {
		return types.Encounter{}, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id, owner string) error {
	resp, err := c.request(ctx, owner).
		SetPathParam("id", id).
		Delete("/api/v1/encounters/{id}")
	return check("delete", resp, err)
}

func (c *Client) SelectByOwner(ctx context.Context, owner string) ([]types.Encounter, error) {
	var out types.EncountersResponse
	resp, err := c.request(ctx, owner).
		SetResult(&out).
		Get("/api/v1/encounters")
	if err := check("select", resp, err); err != nil {
		return nil, err
	}
	return out.Encounters, nil
}

func (c *Client) Profile(ctx context.Context, owner string) (types.Profile, error) {
	var out types.Profile
	resp, err := c.request(ctx, owner).
		SetResult(&out).
		Get("/api/v1/profile")
	if err := check("profile", resp, err); err != nil {
		return types.Profile{}, err
	}
	return out, nil
}

// PutProfile creates or replaces the owner's profile.
func (c *Client) PutProfile(ctx context.Context, p types.Profile) (types.Profile, error) {
	var out types.Profile
	resp, err := c.request(ctx, p.ID).
		SetBody(p).
		SetResult(&out).
		Put("/api/v1/profile")
	if err := check("put_profile", resp, err); err != nil {
		return types.Profile{}, err
	}
	return out, nil
}

func periodQuery(month string, year int, ownerName string) map[string]string {
	q := map[string]string{"month": month, "year": strconv.Itoa(year)}
	if ownerName != "" {
		q["owner_name"] = ownerName
	}
	return q
}

func (c *Client) DeleteVisitTotals(ctx context.Context, month string, year int, ownerName string) error {
	resp, err := c.request(ctx, "").
		SetQueryParams(periodQuery(month, year, ownerName)).
		Delete("/api/v1/summaries/visits")
	return check("delete_visit_totals", resp, err)
}

func (c *Client) InsertVisitTotals(ctx context.Context, rows []types.VisitBucket) error {
	resp, err := c.request(ctx, "").
		SetBody(types.VisitTotalsPayload{Rows: rows}).
		Post("/api/v1/summaries/visits")
	return check("insert_visit_totals", resp, err)
}

func (c *Client) DeleteBookingTotals(ctx context.Context, month string, year int, ownerName string) error {
	resp, err := c.request(ctx, "").
		SetQueryParams(periodQuery(month, year, ownerName)).
		Delete("/api/v1/summaries/bookings")
	return check("delete_booking_totals", resp, err)
}

func (c *Client) InsertBookingTotals(ctx context.Context, rows []types.BookingBucket) error {
	resp, err := c.request(ctx, "").
		SetBody(types.BookingTotalsPayload{Rows: rows}).
		Post("/api/v1/summaries/bookings")
	return check("insert_booking_totals", resp, err)
}

func (c *Client) ListVisitTotals(ctx context.Context, month string, year int) ([]types.VisitBucket, error) {
	var out types.VisitTotalsPayload
	resp, err := c.request(ctx, "").
		SetQueryParams(periodQuery(month, year, "")).
		SetResult(&out).
		Get("/api/v1/summaries/visits")
	if err := check("list_visit_totals", resp, err); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

func (c *Client) ListBookingTotals(ctx context.Context, month string, year int) ([]types.BookingBucket, error) {
	var out types.BookingTotalsPayload
	resp, err := c.request(ctx, "").
		SetQueryParams(periodQuery(month, year, "")).
		SetResult(&out).
		Get("/api/v1/summaries/bookings")
	if err := check("list_booking_totals", resp, err); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

func (c *Client) ListSummaryPeriods(ctx context.Context) ([]types.SummaryPeriod, error) {
	var out types.SummaryPeriodsPayload
	resp, err := c.request(ctx, "").
		SetResult(&out).
		Get("/api/v1/summaries/periods")
	if err := check("list_summary_periods", resp, err); err != nil {
		return nil, err
	}
	return out.Periods, nil
}
