package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
)

// FunctionError is a non-2xx edge function response.
type FunctionError struct {
	Status  int
	Message string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("edge function returned status %d: %s", e.Status, e.Message)
}

// ClientError reports whether the call itself was rejected (4xx).
func (e *FunctionError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

func wrapFunctionError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "functions/" + name}
	}
	var fe *FunctionError
	if errors.As(err, &fe) {
		switch fe.Status {
		case http.StatusUnauthorized:
			return &domain.ErrUnauthorized{Message: "Sessão expirada, faça login novamente"}
		case http.StatusForbidden:
			return &domain.ErrForbidden{Action: name}
		case http.StatusConflict:
			return &domain.ErrConflict{Message: fe.Message}
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return &domain.ErrValidation{Field: "user", Message: fe.Message}
		}
	}
	return &domain.ErrExternalService{Service: "functions/" + name, Err: err}
}
