package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/acmchapter/gatepass/pkg/whttp"
)

const DefaultBaseURL = "http://localhost:5000"

// Client talks to the gate-pass backend. Reads are retried, the check-in
// POST is sent once so a lost response never turns into a false conflict.
type Client struct {
	BaseURL string
	read    *retryablehttp.Client
	write   *retryablehttp.Client
	newID   func() string
}

// NewClient builds a client for baseURL. httpLogger is handed to
// retryablehttp and may be nil.
func NewClient(baseURL string, retries int, httpLogger interface{}) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}

	read, err := whttp.NewClient(retries, httpLogger)
	if err != nil {
		return nil, err
	}
	write, err := whttp.NewClient(0, httpLogger)
	if err != nil {
		return nil, err
	}
	write.HTTPClient.Jar = read.HTTPClient.Jar

	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		read:    read,
		write:   write,
		newID:   uuid.NewString,
	}, nil
}

func (c *Client) send(ctx context.Context, client *retryablehttp.Client, req *whttp.WHTTPReq) (*whttp.WHTTPRes, error) {
	req.Headers = append(req.Headers, whttp.WHTTPHeader{Name: "X-Request-Id", Value: c.newID()})
	return whttp.SendHTTPRequest(ctx, req, client)
}

// sendError wraps a transport failure as *NetworkError. A request that
// could not be built never reached the network and is returned as is.
func sendError(op string, err error) error {
	var reqErr *whttp.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &NetworkError{Op: op, Err: err}
}

// Stats fetches the aggregate counts.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	res, err := c.send(ctx, c.read, &whttp.WHTTPReq{
		Method: http.MethodGet,
		URL:    c.BaseURL + "/api/stats",
	})
	if err != nil {
		return Stats{}, sendError("stats", err)
	}
	if !res.OK() {
		return Stats{}, &ServerError{Status: res.StatusCode, Message: errorMessage(res)}
	}
	if !gjson.Valid(res.BodyString) {
		return Stats{}, &ServerError{Status: res.StatusCode, Message: "invalid stats response"}
	}

	r := gjson.Parse(res.BodyString)
	s := Stats{
		Total:   int(r.Get("total").Int()),
		Scanned: int(r.Get("scanned").Int()),
	}
	if rem := r.Get("remaining"); rem.Exists() {
		s.Remaining = int(rem.Int())
	} else {
		s.Remaining = s.Total - s.Scanned
	}
	return s, nil
}

// Search looks a participant up by registration number. The number is
// trimmed; a blank one returns ErrEmptyQuery without issuing a request.
func (c *Client) Search(ctx context.Context, regNo string) (Participant, error) {
	regNo = strings.TrimSpace(regNo)
	if regNo == "" {
		return Participant{}, ErrEmptyQuery
	}

	res, err := c.send(ctx, c.read, &whttp.WHTTPReq{
		Method: http.MethodGet,
		URL:    c.BaseURL + "/api/search?regNo=" + url.QueryEscape(regNo),
	})
	if err != nil {
		return Participant{}, sendError("search", err)
	}
	if !res.OK() {
		return Participant{}, &LookupError{Query: regNo, Status: res.StatusCode, Message: errorMessage(res)}
	}
	return parseParticipant(res)
}

// CheckIn marks a participant as checked in. A 409 yields *ConflictError
// carrying the original scan time.
func (c *Client) CheckIn(ctx context.Context, regNo string) (Participant, error) {
	regNo = strings.TrimSpace(regNo)
	if regNo == "" {
		return Participant{}, ErrEmptyQuery
	}

	body, err := json.Marshal(map[string]string{"regNo": regNo})
	if err != nil {
		return Participant{}, err
	}
	res, err := c.send(ctx, c.write, &whttp.WHTTPReq{
		Method:  http.MethodPost,
		URL:     c.BaseURL + "/api/checkin",
		Headers: []whttp.WHTTPHeader{{Name: "Content-Type", Value: "application/json"}},
		Body:    string(body),
	})
	if err != nil {
		return Participant{}, sendError("checkin", err)
	}

	if res.StatusCode == http.StatusConflict {
		return Participant{}, &ConflictError{ScannedAt: gjson.Get(res.BodyString, "scannedAt").String()}
	}
	if !res.OK() {
		return Participant{}, &ServerError{Status: res.StatusCode, Message: errorMessage(res)}
	}
	return parseParticipant(res)
}

func parseParticipant(res *whttp.WHTTPRes) (Participant, error) {
	if !gjson.Valid(res.BodyString) {
		return Participant{}, &ServerError{Status: res.StatusCode, Message: "invalid response from server"}
	}
	r := gjson.Parse(res.BodyString)
	return Participant{
		Name:           r.Get("name").String(),
		RegistrationNo: r.Get("registrationNo").String(),
		Status:         ParseStatus(r.Get("status").String()),
		ScannedAt:      r.Get("scannedAt").String(),
	}, nil
}

// errorMessage pulls the server's message out of an error response: the
// JSON "error" field, else the HTML page title.
func errorMessage(res *whttp.WHTTPRes) string {
	if gjson.Valid(res.BodyString) {
		if msg := gjson.Get(res.BodyString, "error").String(); msg != "" {
			return msg
		}
		return ""
	}
	return res.HTTPTitle
}
