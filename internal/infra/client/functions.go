// Package client calls the Supabase edge functions that manage users.
// Those functions also provision the Supabase Auth record, which the
// PostgREST API cannot do.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

const (
	fnListUsers  = "list-users"
	fnManageUser = "manage-user"
)

// FunctionsClient invokes edge functions with the caller's bearer token.
type FunctionsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewFunctionsClient creates a client for {baseURL}/functions/v1.
func NewFunctionsClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *FunctionsClient {
	return &FunctionsClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
	}
}

type listUsersResponse struct {
	Users []domain.Profile `json:"users"`
}

// ListUsers returns every user with role and job title.
func (c *FunctionsClient) ListUsers(ctx context.Context, accessToken string) ([]domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "FunctionsClient.ListUsers")
	defer span.End()

	var users []domain.Profile

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.invoke(ctx, fnListUsers, accessToken, map[string]any{})
			if err != nil {
				return err
			}
			// The function has answered both shapes over time.
			var wrapped listUsersResponse
			if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Users != nil {
				users = wrapped.Users
				return nil
			}
			if err := json.Unmarshal(body, &users); err != nil {
				return resilience.Permanent(fmt.Errorf("decode %s: %w", fnListUsers, err))
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapFunctionError(fnListUsers, err)
	}
	return users, nil
}

type manageUserResponse struct {
	User  *domain.Profile `json:"user"`
	Error string          `json:"error"`
}

// ManageUser creates, updates or deletes a user. Not retried: creating a
// user twice would provision two auth records.
func (c *FunctionsClient) ManageUser(ctx context.Context, accessToken string, req *domain.ManageUserRequest) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "FunctionsClient.ManageUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.action", req.Action))

	result, err := c.cb.Execute(func() (any, error) {
		body, err := c.invoke(ctx, fnManageUser, accessToken, req)
		if err != nil {
			return nil, err
		}
		var resp manageUserResponse
		if len(body) > 0 {
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, fmt.Errorf("decode %s: %w", fnManageUser, err)
			}
		}
		if resp.Error != "" {
			return nil, &FunctionError{Status: http.StatusBadRequest, Message: resp.Error}
		}
		return resp.User, nil
	})
	if err != nil {
		return nil, wrapFunctionError(fnManageUser, err)
	}
	profile, _ := result.(*domain.Profile)
	return profile, nil
}

func (c *FunctionsClient) invoke(ctx context.Context, name, accessToken string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/functions/v1/%s", c.baseURL, name)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fe := &FunctionError{Status: resp.StatusCode, Message: string(body)}
		var decoded struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
			fe.Message = decoded.Error
		}
		if fe.ClientError() {
			return nil, resilience.Permanent(fe)
		}
		return nil, fe
	}
	return body, nil
}
