package supabase

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
)

// APIError is a non-2xx PostgREST/Storage response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase returned status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Message)
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	apiErr.Status = status
	return apiErr
}

// knownCodes maps Postgres / PostgREST codes to messages shown to users.
var knownCodes = map[string]string{
	"23505":    "Já existe um registro com esses dados",
	"23503":    "Registro relacionado não encontrado ou ainda em uso",
	"23502":    "Campo obrigatório não preenchido",
	"23514":    "Valor fora das regras permitidas",
	"22P02":    "Formato de valor inválido",
	"22001":    "Texto maior que o permitido",
	"42501":    "Sem permissão para esta operação",
	"42703":    "Campo inexistente na tabela",
	"42P01":    "Tabela inexistente",
	"PGRST116": "Registro não encontrado",
	"PGRST204": "Campo inexistente na tabela",
	"PGRST301": "Sessão expirada, faça login novamente",
}

// Translate returns a human message for a backend code.
func Translate(code, fallback string) string {
	if msg, ok := knownCodes[code]; ok {
		return msg
	}
	if fallback != "" {
		return fallback
	}
	return "Não foi possível salvar as alterações"
}

// toDomainError converts transport errors into the domain taxonomy.
func toDomainError(op string, err error) error {
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "supabase"}
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return &domain.ErrExternalService{Service: "supabase/" + op, Err: err}
	}

	switch {
	case apiErr.Code == "23505":
		return &domain.ErrConflict{Message: Translate(apiErr.Code, "")}
	case apiErr.Code == "42501" || apiErr.Status == 403:
		return &domain.ErrForbidden{Action: op}
	case apiErr.Code == "PGRST116":
		return &domain.ErrNotFound{Resource: op, ID: ""}
	case apiErr.Status >= 500:
		return &domain.ErrExternalService{Service: "supabase/" + op, Err: err}
	}
	return &domain.ErrPersistence{
		Operation: op,
		Code:      apiErr.Code,
		Message:   Translate(apiErr.Code, ""),
		Err:       err,
	}
}

// ClientError reports whether the request itself was rejected (4xx).
func (e *APIError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}
