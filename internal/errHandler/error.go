package errHandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/cradoe/songbid/internal/bulk"
	"github.com/cradoe/songbid/internal/helper"
	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/response"
	"github.com/cradoe/songbid/internal/smtp"
)

type ErrorRepository struct {
	notificationEmail string
	logger            *slog.Logger
	help              *helper.HelperRepository
	mailer            smtp.MailerInterface
}

func New(notificationEmail string, mailer smtp.MailerInterface, logger *slog.Logger, help *helper.HelperRepository) *ErrorRepository {
	return &ErrorRepository{
		notificationEmail: notificationEmail,
		logger:            logger,
		help:              help,
		mailer:            mailer,
	}
}

func (e *ErrorRepository) ReportServerError(r *http.Request, err error) {
	var (
		message = err.Error()
		method  string
		url     string
		trace   = string(debug.Stack())
	)

	if r != nil {
		method = r.Method
		url = r.URL.String()
	}

	requestAttrs := slog.Group("request", "method", method, "url", url)
	e.logger.Error(message, requestAttrs, "trace", trace)

	if e.notificationEmail != "" && e.mailer != nil {
		data := e.help.NewEmailData()
		data["Message"] = message
		data["RequestMethod"] = method
		data["RequestURL"] = url
		data["Trace"] = trace

		e.help.BackgroundTask(r, func() error {
			return e.mailer.Send(context.Background(), e.notificationEmail, data, "error-notification.tmpl")
		})
	}
}

type Error struct {
	w       http.ResponseWriter
	r       *http.Request
	errors  any
	status  int
	message string
	headers http.Header
}

func (e *ErrorRepository) ErrorMessage(d *Error) {
	d.message = strings.ToUpper(d.message[:1]) + d.message[1:]

	err := response.JSONErrorResponse(d.w, d.errors, d.message, d.status, d.headers)
	if err != nil {
		e.ReportServerError(d.r, err)
		d.w.WriteHeader(http.StatusInternalServerError)
	}
}

func (e *ErrorRepository) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	e.ReportServerError(r, err)

	message := "The server encountered a problem and could not process your request"
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusInternalServerError,
		message: message,
	})
}

func (e *ErrorRepository) NotFound(w http.ResponseWriter, r *http.Request) {
	message := "The requested resource could not be found"
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusNotFound,
		message: message,
	})
}

func (e *ErrorRepository) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	message := fmt.Sprintf("The %s method is not supported for this resource", r.Method)
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusMethodNotAllowed,
		message: message,
	})
}

func (e *ErrorRepository) BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusBadRequest,
		message: err.Error(),
	})
}

func (e *ErrorRepository) FailedValidation(w http.ResponseWriter, r *http.Request, v any) {
	message := "Validation failed"

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnprocessableEntity,
		message: message,
		errors:  v,
	})
}

func (e *ErrorRepository) InvalidAuthenticationToken(w http.ResponseWriter, r *http.Request) {
	headers := make(http.Header)
	headers.Set("WWW-Authenticate", "Bearer")

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnauthorized,
		message: "Invalid authentication token",
		headers: headers,
	})
}

func (e *ErrorRepository) AuthenticationRequired(w http.ResponseWriter, r *http.Request) {
	message := "You must be authenticated to access this resource"
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnauthorized,
		message: message,
	})
}

func (e *ErrorRepository) Forbidden(w http.ResponseWriter, r *http.Request) {
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusForbidden,
		message: "You are not allowed to perform this action",
	})
}

// LedgerError writes the response for an error returned by a wallet service.
// Domain errors map to client statuses; anything else is a server error.
func (e *ErrorRepository) LedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrMethodNotFound),
		errors.Is(err, bulk.ErrUnknownAction):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrUnauthorized):
		e.Forbidden(w, r)
		return
	case errors.Is(err, ledger.ErrAlreadyTerminal),
		errors.Is(err, ledger.ErrDuplicateProcessing):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrGatewayUnavailable),
		errors.Is(err, ledger.ErrGatewayTimeout):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrWalletNotFound):
		e.NotFound(w, r)
		return
	default:
		e.ServerError(w, r, err)
		return
	}

	headers := make(http.Header)
	if status == http.StatusServiceUnavailable {
		headers.Set("Retry-After", "5")
	}

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  status,
		message: err.Error(),
		headers: headers,
	})
}
