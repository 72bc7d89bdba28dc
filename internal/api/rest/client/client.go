// Package client implements a client for querying the Payeer merchant API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/metrics"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelpayeer"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const actionHistoryInfo = "historyInfo"

// UnavailableError reports a transient failure to reach the API: network error, timeout,
// 5xx or 429 reply, rate limiter cancellation or an open circuit breaker.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("payeer api unavailable: %s", e.Err.Error())
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// AuthError reports that the API refused the request itself (401 or 403).
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("payeer api refused access: status %d", e.Status)
}

type historyResult struct {
	response *modelpayeer.HistoryInfoResponse
	err      error
}

// Client defines attributes of a struct available to its methods.
type Client struct {
	client  *resty.Client
	cfg     *config.PayeerConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*modelpayeer.HistoryInfoResponse]
	log     *zerolog.Logger
}

// InitClient initializes a resty client guarded by a rate limiter and a circuit breaker.
func InitClient(cfg *config.PayeerConfig, log *zerolog.Logger) *Client {
	payeerClient := resty.New().SetTimeout(cfg.Timeout)
	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}
	st := gobreaker.Settings{
		Name:        "payeer",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		// only transport-level failures count against the breaker
		IsSuccessful: func(err error) bool {
			var unavailableError *UnavailableError
			return err == nil || !errors.As(err, &unavailableError)
		},
	}
	log.Info().Msg("payeer api client initialized")
	return &Client{
		client:  payeerClient,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		breaker: gobreaker.NewCircuitBreaker[*modelpayeer.HistoryInfoResponse](st),
		log:     log,
	}
}

// GetHistoryInfo executes the historyInfo query for a given operation identifier.
// The request itself is detached from ctx cancellation and bounded by the client timeout,
// so a caller going away returns early without being recorded as a provider failure.
func (c *Client) GetHistoryInfo(ctx context.Context, creds modelpayeer.Credentials, historyID string) (*modelpayeer.HistoryInfoResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UnavailableError{Err: err}
	}
	done := make(chan historyResult, 1)
	go func() {
		start := time.Now()
		response, err := c.breaker.Execute(func() (*modelpayeer.HistoryInfoResponse, error) {
			return c.historyInfo(context.WithoutCancel(ctx), creds, historyID)
		})
		metrics.ObserveGatewayCall(actionHistoryInfo, time.Since(start).Seconds(), err)
		done <- historyResult{response: response, err: err}
	}()

	select {
	case <-ctx.Done():
		c.log.Info().Err(ctx.Err()).Str("operation", historyID).Msg("history info request abandoned by caller")
		return nil, &UnavailableError{Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			err := res.err
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = &UnavailableError{Err: err}
			}
			c.log.Error().Err(err).Str("operation", historyID).Msg("history info retrieval failed")
			return nil, err
		}
		return res.response, nil
	}
}

func (c *Client) historyInfo(ctx context.Context, creds modelpayeer.Credentials, historyID string) (*modelpayeer.HistoryInfoResponse, error) {
	c.log.Debug().Str("operation", historyID).Msg("sending history info request")
	response, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"account":   creds.Account,
			"apiId":     creds.APIID,
			"apiPass":   creds.APIKey,
			"action":    actionHistoryInfo,
			"historyId": historyID,
		}).
		Post(c.cfg.APIURL)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	switch code := response.StatusCode(); {
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return nil, &UnavailableError{Err: fmt.Errorf("unexpected status %d", code)}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, &AuthError{Status: code}
	case code != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", code)
	}
	var info modelpayeer.HistoryInfoResponse
	if err := json.Unmarshal(response.Body(), &info); err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("malformed reply: %w", err)}
	}
	return &info, nil
}
