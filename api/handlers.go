package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/labstack/echo/v4"

	"github.com/goliatone/go-integrations/adapters/gocommand"
	"github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/query"
	"github.com/goliatone/go-integrations/webhooks"
)

const defaultMaxBodyBytes = 1 << 20

// ConnectionView is one row of GET /integrations/connected.
type ConnectionView struct {
	Platform  string     `json:"platform"`
	Connected bool       `json:"connected"`
	LastSync  *time.Time `json:"lastSync"`
	AuthType  string     `json:"authType"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type authorizeResponse struct {
	URL       string    `json:"url"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type callbackResponse struct {
	Success     bool      `json:"success"`
	Platform    string    `json:"platform"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type disconnectResponse struct {
	Success        bool       `json:"success"`
	DisconnectedAt *time.Time `json:"disconnectedAt"`
}

type queuedResponse struct {
	Queued         bool   `json:"queued"`
	JobID          string `json:"jobId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type unsubscribeRequest struct {
	Platform string `json:"platform"`
	Resource string `json:"resource"`
	UserID   string `json:"userId"`
}

func (s *Server) handleWebhook(c echo.Context) error {
	limit := s.config.Webhooks.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	// One byte past the limit lets the pipeline report the oversize.
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		return core.BadInputError("api: read webhook body", map[string]any{"error": err.Error()})
	}
	result, err := execute[command.HandleWebhookMessage, webhooks.Result](
		c.Request().Context(), s.facade.Commands().HandleWebhook, command.HandleWebhookMessage{
			Delivery: webhooks.Delivery{
				Platform:   c.Param("platform"),
				Header:     c.Request().Header.Clone(),
				Body:       body,
				ReceivedAt: s.now(),
			},
		})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) authorize(c echo.Context) error {
	req, err := execute[command.BeginAuthorizationMessage, core.AuthorizationRequest](
		c.Request().Context(), s.facade.Commands().BeginAuthorization, command.BeginAuthorizationMessage{
			Platform:    c.Param("platform"),
			RedirectURI: c.QueryParam("redirect_uri"),
		})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authorizeResponse{URL: req.URL, State: req.State, ExpiresAt: req.ExpiresAt})
}

// callback answers with JSON, or redirects to the settings page when one is
// configured so the browser lands back in the product.
func (s *Server) callback(c echo.Context) error {
	platform := core.NormalizePlatformID(c.Param("platform"))
	credential, err := execute[command.CompleteCallbackMessage, core.Credential](
		c.Request().Context(), s.facade.Commands().CompleteCallback, command.CompleteCallbackMessage{
			Request: core.CallbackRequest{
				Platform:         platform,
				Code:             c.QueryParam("code"),
				State:            c.QueryParam("state"),
				Error:            c.QueryParam("error"),
				ErrorDescription: c.QueryParam("error_description"),
			},
		})

	settingsURL := strings.TrimSpace(s.config.OAuth.SettingsRedirectURL)
	if settingsURL == "" {
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, callbackResponse{
			Success:     true,
			Platform:    platform,
			ConnectedAt: credential.UpdatedAt,
		})
	}

	params := url.Values{}
	params.Set("platform", platform)
	if err != nil {
		s.logger.Warn("oauth callback failed", "platform", platform, "error", err.Error())
		params.Set("error", core.MapError(err).Message)
	} else {
		params.Set("connected", "true")
	}
	target, parseErr := withQuery(settingsURL, params)
	if parseErr != nil {
		return core.ConfigurationError(platform, "api: settings redirect url is invalid")
	}
	return c.Redirect(http.StatusFound, target)
}

func (s *Server) connected(c echo.Context) error {
	ctx := c.Request().Context()
	msg := query.ListConnectedMessage{}
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return err
	}
	statuses, err := s.facade.Queries().ListConnected.Query(ctx, msg)
	if err != nil {
		return err
	}
	out := make([]ConnectionView, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, ConnectionView{
			Platform:  status.Platform,
			Connected: status.Connected,
			LastSync:  status.LastSync,
			AuthType:  status.AuthType,
			ExpiresAt: status.ExpiresAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) disconnect(c echo.Context) error {
	status, err := execute[command.DisconnectMessage, core.IntegrationStatus](
		c.Request().Context(), s.facade.Commands().Disconnect, command.DisconnectMessage{
			Platform: c.Param("platform"),
		})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, disconnectResponse{Success: true, DisconnectedAt: status.DisconnectedAt})
}

func (s *Server) sync(c echo.Context) error {
	ctx := c.Request().Context()
	platform := c.Param("platform")
	appID, err := wildcardParam(c)
	if err != nil {
		return err
	}
	async, err := boolQuery(c, "async")
	if err != nil {
		return err
	}
	if async {
		msg, err := execute[command.EnqueueSyncMessage, *core.JobExecutionMessage](
			ctx, s.facade.Commands().EnqueueSync, command.EnqueueSyncMessage{Platform: platform, AppID: appID})
		if err != nil {
			return err
		}
		out := queuedResponse{Queued: true}
		if msg != nil {
			out.JobID = msg.JobID
			out.IdempotencyKey = msg.IdempotencyKey
		}
		return c.JSON(http.StatusAccepted, out)
	}

	snapshot, err := execute[command.SyncAppMessage, core.SyncSnapshot](
		ctx, s.facade.Commands().SyncApp, command.SyncAppMessage{Platform: platform, AppID: appID})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (s *Server) snapshots(c echo.Context) error {
	appID, err := wildcardParam(c)
	if err != nil {
		return err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	out, err := runQuery[query.ListSnapshotsMessage, []core.SyncSnapshot](
		c.Request().Context(), s.facade.Queries().ListSnapshots, query.ListSnapshotsMessage{
			Platform: c.Param("platform"),
			AppID:    appID,
			Limit:    limit,
		})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) events(c echo.Context) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	out, err := runQuery[query.ListEventsMessage, []core.NormalizedEvent](
		c.Request().Context(), s.facade.Queries().ListEvents, query.ListEventsMessage{
			Platform: c.Param("platform"),
			Limit:    limit,
		})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) event(c echo.Context) error {
	key, err := wildcardParam(c)
	if err != nil {
		return err
	}
	out, err := runQuery[query.GetEventMessage, core.NormalizedEvent](
		c.Request().Context(), s.facade.Queries().GetEvent, query.GetEventMessage{
			Platform:       c.Param("platform"),
			IdempotencyKey: key,
		})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) subscribe(c echo.Context) error {
	var req core.SubscribeRequest
	if err := c.Bind(&req); err != nil {
		return core.BadInputError("api: invalid subscription body", nil)
	}
	out, err := execute[command.SubscribeMessage, core.Subscription](
		c.Request().Context(), s.facade.Commands().Subscribe, command.SubscribeMessage{Request: req})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) unsubscribe(c echo.Context) error {
	var req unsubscribeRequest
	if err := c.Bind(&req); err != nil {
		return core.BadInputError("api: invalid unsubscribe body", nil)
	}
	out, err := execute[command.UnsubscribeMessage, command.UnsubscribeResult](
		c.Request().Context(), s.facade.Commands().Unsubscribe, command.UnsubscribeMessage{
			Platform: req.Platform,
			Resource: req.Resource,
			UserID:   req.UserID,
		})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) subscriptions(c echo.Context) error {
	out, err := runQuery[query.ListSubscriptionsMessage, []core.Subscription](
		c.Request().Context(), s.facade.Queries().ListSubscriptions, query.ListSubscriptionsMessage{
			Platform: c.Param("platform"),
		})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// execute validates msg, runs cmd and returns the result it stored.
func execute[T any, R any](ctx context.Context, cmd gocmd.Commander[T], msg T) (R, error) {
	var zero R
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[R]()
	if err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	out, _ := collector.Load()
	return out, nil
}

func runQuery[T any, R any](ctx context.Context, qry gocmd.Querier[T, R], msg T) (R, error) {
	var zero R
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	return qry.Query(ctx, msg)
}

func wildcardParam(c echo.Context) (string, error) {
	raw := c.Param("*")
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", core.BadInputError("api: invalid path parameter", map[string]any{"value": raw})
	}
	return strings.Trim(value, "/"), nil
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.BadInputError("api: "+name+" must be an integer", map[string]any{name: raw})
	}
	return value, nil
}

func boolQuery(c echo.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, core.BadInputError("api: "+name+" must be a boolean", map[string]any{name: raw})
	}
	return value, nil
}

func withQuery(base string, params url.Values) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	merged := parsed.Query()
	for key, values := range params {
		for _, value := range values {
			merged.Set(key, value)
		}
	}
	parsed.RawQuery = merged.Encode()
	return parsed.String(), nil
}
